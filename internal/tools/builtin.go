// Package tools provides the built-in tools: arithmetic, temperature conversion and
// weather forecasts.
package tools

import (
	"github.com/aretw0/itinera/pkg/registry"
)

// SourceName labels the built-in tools in load reports.
const SourceName = "builtin"

// Builtin returns every built-in tool as a registry source.
// weather may be nil, in which case the forecast tool is left out.
func Builtin(weather *Weather) registry.StaticSource {
	all := MathTools()
	all = append(all, convertTool())
	if weather != nil {
		all = append(all, weather.tool())
	}
	return registry.StaticSource{Label: SourceName, Tools: all}
}
