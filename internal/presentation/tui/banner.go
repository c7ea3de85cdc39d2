package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{` _ _   _                     `, "#818cf8"},
	{`(_) |_(_)_ __   ___ _ __ __ _ `, "#a78bfa"},
	{`| | __| | '_ \ / _ \ '__/ _' |`, "#c084fc"},
	{`| | |_| | | | |  __/ | | (_| |`, "#e879f9"},
	{`|_|\__|_|_| |_|\___|_|  \__,_|`, "#f472b6"},
}

// PrintBanner writes the ASCII banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	fmt.Fprintln(w)
	for _, line := range bannerLines {
		fmt.Fprintln(w, p.String(line.text).Foreground(p.Color(line.color)))
	}
	fmt.Fprintln(w, p.String("  "+version).Faint())
	fmt.Fprintln(w)
}
