// Package output formats CLI output: status lines and search results, with
// colour when writing to a terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/looter/nuclide/internal/search"
)

// Format selects how results are printed.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown format %q (want text or json)", s)
}

var (
	matchStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("154"))
	rootStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	scoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates a Writer. Colour is enabled when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	return &Writer{
		out:      out,
		useColor: isTerminal(out) && os.Getenv("NO_COLOR") == "",
	}
}

// NewPlain creates a Writer that never emits colour.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Color reports whether the writer emits ANSI styling.
func (w *Writer) Color() bool {
	return w.useColor
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints a code block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Results prints search results. Text output shows one path per line,
// prefixed with its root when results span more than one root.
func (w *Writer) Results(results []search.Result, format Format) error {
	if format == FormatJSON {
		if results == nil {
			results = []search.Result{}
		}
		return w.JSON(results)
	}

	multiRoot := spansRoots(results)
	for _, r := range results {
		var b strings.Builder
		if multiRoot && r.Root != "" {
			b.WriteString(w.style(rootStyle, r.Root.String()+"/"))
		}
		b.WriteString(w.highlight(r.Path, r.MatchIndexes))
		if w.useColor {
			b.WriteString(" " + scoreStyle.Render(fmt.Sprintf("%.0f", r.Score)))
		}
		if _, err := fmt.Fprintln(w.out, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) highlight(path string, indexes []int) string {
	if !w.useColor {
		return path
	}
	return Highlight(path, indexes, matchStyle)
}

func (w *Writer) style(s lipgloss.Style, text string) string {
	if !w.useColor {
		return text
	}
	return s.Render(text)
}

// Highlight renders the runes of path at indexes with style. Runs of
// adjacent matches are rendered together.
func Highlight(path string, indexes []int, style lipgloss.Style) string {
	if len(indexes) == 0 {
		return path
	}
	matched := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		matched[i] = true
	}

	var b, run strings.Builder
	inMatch := false
	flush := func() {
		if run.Len() == 0 {
			return
		}
		if inMatch {
			b.WriteString(style.Render(run.String()))
		} else {
			b.WriteString(run.String())
		}
		run.Reset()
	}
	for i, r := range []rune(path) {
		if matched[i] != inMatch {
			flush()
			inMatch = matched[i]
		}
		run.WriteRune(r)
	}
	flush()
	return b.String()
}

func spansRoots(results []search.Result) bool {
	for _, r := range results[min(1, len(results)):] {
		if r.Root != results[0].Root {
			return true
		}
	}
	return false
}
