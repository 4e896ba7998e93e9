package ui

import (
	"os"

	"github.com/mattn/go-isatty"
)

// ColorScheme holds ANSI color codes for terminal output
type ColorScheme struct {
	Reset   string
	Bold    string
	Dim     string
	Green   string
	Yellow  string
	Red     string
	Magenta string
}

// Colors is the global color scheme instance
var Colors = initColors()

// initColors disables color when NO_COLOR is set or stdout is not a
// terminal, so piped output stays clean.
func initColors() ColorScheme {
	if os.Getenv("NO_COLOR") != "" {
		return ColorScheme{}
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return ColorScheme{}
	}
	return ColorScheme{
		Reset:   "\033[0m",
		Bold:    "\033[1m",
		Dim:     "\033[2m",
		Green:   "\033[32m",
		Yellow:  "\033[33m",
		Red:     "\033[31m",
		Magenta: "\033[35m",
	}
}
