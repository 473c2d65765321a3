package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Title     *color.Color
	Rule      *color.Color
	Label     *color.Color
	Value     *color.Color
	Dim       *color.Color
	Pass      *color.Color
	Warn      *color.Color
	Fail      *color.Color
	Highlight *color.Color
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Rule, s.Label, s.Value, s.Dim, s.Pass, s.Warn, s.Fail, s.Highlight}
}

// DefaultColorScheme returns the default color scheme. Colors are forced on;
// callers decide beforehand whether the writer should get them.
func DefaultColorScheme() *ColorScheme {
	scheme := &ColorScheme{
		Title:     color.New(color.Bold),
		Rule:      color.New(color.FgCyan),
		Label:     color.New(color.FgWhite),
		Value:     color.New(color.FgCyan),
		Dim:       color.New(color.Faint),
		Pass:      color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow),
		Fail:      color.New(color.FgRed),
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

// PassIcon returns a checkmark in the scheme's pass color
func (s *ColorScheme) PassIcon() string {
	return s.Pass.Sprint("✓")
}

// FailIcon returns an X in the scheme's fail color
func (s *ColorScheme) FailIcon() string {
	return s.Fail.Sprint("✗")
}

// WarnIcon returns a warning symbol in the scheme's warn color
func (s *ColorScheme) WarnIcon() string {
	return s.Warn.Sprint("⚠")
}

// Icon returns PassIcon or FailIcon
func (s *ColorScheme) Icon(ok bool) string {
	if ok {
		return s.PassIcon()
	}
	return s.FailIcon()
}

// rateColor picks green, yellow or red for a success fraction.
func (s *ColorScheme) rateColor(success float64) *color.Color {
	switch {
	case success >= 0.99:
		return s.Pass
	case success >= 0.95:
		return s.Warn
	default:
		return s.Fail
	}
}
