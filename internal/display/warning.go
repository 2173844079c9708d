package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Warning represents a user-facing warning message
type Warning struct {
	Title      string   // Main warning title
	Message    string   // Detailed explanation (optional)
	Items      []string // Related runs, checkpoints or tasks (optional)
	Suggestion string   // Action to take (optional)
}

// Display writes the warning to out, in yellow when out is a terminal.
func (w Warning) Display(out io.Writer) {
	fmt.Fprint(out, w.render(colorEnabled(out)))
}

func (w Warning) render(enableColor bool) string {
	var b strings.Builder

	b.WriteString("Warning: ")
	b.WriteString(w.Title)
	b.WriteString("\n")

	if w.Message != "" {
		b.WriteString("    ")
		b.WriteString(w.Message)
		b.WriteString("\n")
	}

	for _, item := range w.Items {
		b.WriteString("      - ")
		b.WriteString(item)
		b.WriteString("\n")
	}

	if w.Suggestion != "" {
		b.WriteString("    Suggestion: ")
		b.WriteString(w.Suggestion)
		b.WriteString("\n")
	}

	if !enableColor {
		return b.String()
	}
	c := color.New(color.FgYellow)
	c.EnableColor()
	return c.Sprint(b.String())
}

// colorEnabled reports whether out is a color-capable terminal.
func colorEnabled(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok || color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
