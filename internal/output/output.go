// Package output formats CLI output. Color is used only when writing to a
// terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette, as 256-color codes.
const (
	ColorLime   = "154"
	ColorGray   = "245"
	ColorRed    = "196"
	ColorYellow = "220"
)

// Styles holds the lipgloss styles the Writer renders with.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Label   lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
	}
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// NoColor reports whether the NO_COLOR convention asks for plain output.
func NoColor() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}

// Writer provides formatted output for the CLI.
type Writer struct {
	out    io.Writer
	styles Styles
}

// New creates a Writer, colored only for terminals.
func New(out io.Writer) *Writer {
	styles := PlainStyles()
	if IsTTY(out) && !NoColor() {
		styles = DefaultStyles()
	}
	return &Writer{out: out, styles: styles}
}

// NewWithStyles creates a Writer with explicit styles.
func NewWithStyles(out io.Writer, styles Styles) *Writer {
	return &Writer{out: out, styles: styles}
}

// Status prints a message behind an optional marker.
// Write errors are ignored for console output.
func (w *Writer) Status(marker, msg string) {
	if marker != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", marker, msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(marker, format string, args ...any) {
	w.Status(marker, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("ok"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("!!"), msg)
}

// Warningf prints a formatted warning.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("xx"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Header prints a section title.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(title))
}

// Field prints an aligned "label: value" line.
func (w *Writer) Field(label string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %s %v\n", w.styles.Label.Render(fmt.Sprintf("%-16s", label+":")), value)
}

// List prints items one per line, numbered from 1. An empty list prints
// the empty message instead.
func (w *Writer) List(items []string, empty string) {
	if len(items) == 0 {
		w.Status("", w.styles.Label.Render(empty))
		return
	}
	width := len(fmt.Sprint(len(items)))
	for i, item := range items {
		num := fmt.Sprintf("%*d.", width, i+1)
		_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Label.Render(num), item)
	}
}

// Outcome prints a per-path result as success or warning.
func (w *Writer) Outcome(ok bool, msg string) {
	if ok {
		w.Success(msg)
		return
	}
	w.Warning(msg)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

