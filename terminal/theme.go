package terminal

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Theme represents a terminal theme configuration
type Theme struct {
	Name         string
	PromptColor  string
	TextColor    string
	ErrorColor   string
	SuccessColor string
	InfoColor    string
}

// Themes lists the built-in theme names.
var Themes = []string{"dark", "light"}

// NewTheme returns the named theme; an empty name selects "dark".
func NewTheme(name string) (*Theme, error) {
	switch name {
	case "", "dark":
		return &Theme{
			Name:         "dark",
			PromptColor:  "green",
			TextColor:    "white",
			ErrorColor:   "red",
			SuccessColor: "green",
			InfoColor:    "cyan",
		}, nil
	case "light":
		return &Theme{
			Name:         "light",
			PromptColor:  "blue",
			TextColor:    "black",
			ErrorColor:   "red",
			SuccessColor: "green",
			InfoColor:    "blue",
		}, nil
	}
	return nil, fmt.Errorf("unknown theme: %s", name)
}

// GetPromptColor returns the color function for prompts
func (t *Theme) GetPromptColor() *color.Color {
	return getColorFromName(t.PromptColor)
}

// GetErrorColor returns the color function for error messages
func (t *Theme) GetErrorColor() *color.Color {
	return getColorFromName(t.ErrorColor)
}

// GetSuccessColor returns the color function for success messages
func (t *Theme) GetSuccessColor() *color.Color {
	return getColorFromName(t.SuccessColor)
}

// GetInfoColor returns the color function for info messages
func (t *Theme) GetInfoColor() *color.Color {
	return getColorFromName(t.InfoColor)
}

// getColorFromName returns a color.Color based on the color name
func getColorFromName(name string) *color.Color {
	switch name {
	case "black":
		return color.New(color.FgBlack)
	case "red":
		return color.New(color.FgRed)
	case "green":
		return color.New(color.FgGreen)
	case "yellow":
		return color.New(color.FgYellow)
	case "blue":
		return color.New(color.FgBlue)
	case "magenta":
		return color.New(color.FgMagenta)
	case "cyan":
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}

// Console writes themed status lines. Plain disables colours, e.g. when
// the output is not a terminal.
type Console struct {
	Out   io.Writer
	Err   io.Writer
	Theme *Theme
	Plain bool
}

func (c *Console) paint(col *color.Color) *color.Color {
	if c.Plain {
		col.DisableColor()
	}
	return col
}

// Errorf prints "ERROR <msg>" on the error stream.
func (c *Console) Errorf(format string, args ...any) {
	c.paint(c.Theme.GetErrorColor()).Fprintf(c.Err, "ERROR %s\n", fmt.Sprintf(format, args...))
}

// Warnf prints "WARNING <msg>" on the error stream.
func (c *Console) Warnf(format string, args ...any) {
	c.paint(color.New(color.FgYellow)).Fprintf(c.Err, "WARNING %s\n", fmt.Sprintf(format, args...))
}

// Successf prints a confirmation on the output stream.
func (c *Console) Successf(format string, args ...any) {
	c.paint(c.Theme.GetSuccessColor()).Fprintf(c.Out, format+"\n", args...)
}

// Infof prints an informational line on the output stream.
func (c *Console) Infof(format string, args ...any) {
	c.paint(c.Theme.GetInfoColor()).Fprintf(c.Out, format+"\n", args...)
}

// Println prints text unstyled on the output stream.
func (c *Console) Println(a ...any) {
	fmt.Fprintln(c.Out, a...)
}
