package tools

import (
	"context"
	"math"

	"github.com/aretw0/itinera/pkg/registry"
	"github.com/aretw0/itinera/pkg/schema"
)

type fahrenheitArgs struct {
	Fahrenheit float64 `json:"fahrenheit"`
}

// FahrenheitToCelsius converts, rounding to two decimals.
func FahrenheitToCelsius(f float64) float64 {
	return math.Round((f-32)*5/9*100) / 100
}

func convertTool() registry.Tool {
	return registry.Tool{
		Name:        "convert_fahrenheit_to_celsius",
		Description: "Convert temperature from Fahrenheit to Celsius.",
		Params:      schema.Schema{"fahrenheit": schema.Number()},
		Handler: registry.Typed(func(_ context.Context, args fahrenheitArgs) (any, error) {
			return FahrenheitToCelsius(args.Fahrenheit), nil
		}),
	}
}
