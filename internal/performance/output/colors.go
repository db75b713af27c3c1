package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements of the console output.
type ColorScheme struct {
	Rule      *color.Color
	Title     *color.Color
	Heading   *color.Color
	Value     *color.Color
	Progress  *color.Color
	Stage     *color.Color
	Latency   *color.Color
	Dim       *color.Color
	Success   *color.Color
	Warn      *color.Color
	Error     *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme. Colors are enabled
// unconditionally; the console decides whether to use this or NoColorScheme.
func DefaultColorScheme() *ColorScheme {
	scheme := &ColorScheme{
		Rule:      color.New(color.FgCyan),
		Title:     color.New(color.Bold),
		Heading:   color.New(color.Bold),
		Value:     color.New(color.FgCyan),
		Progress:  color.New(color.FgGreen),
		Stage:     color.New(color.FgMagenta),
		Latency:   color.New(color.FgBlue),
		Dim:       color.New(color.Faint),
		Success:   color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow),
		Error:     color.New(color.FgRed),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Rule, s.Title, s.Heading, s.Value, s.Progress, s.Stage,
		s.Latency, s.Dim, s.Success, s.Warn, s.Error, s.Highlight,
	}
}

// rate picks green, yellow or red for a failure fraction.
func (s *ColorScheme) rate(failures, warnAbove, errorAbove float64) *color.Color {
	switch {
	case failures > errorAbove:
		return s.Error
	case failures > warnAbove:
		return s.Warn
	default:
		return s.Success
	}
}

// passIcon returns a colored checkmark or cross.
func (s *ColorScheme) passIcon(passed bool) string {
	if passed {
		return s.Success.Sprint("✓")
	}
	return s.Error.Sprint("✗")
}
