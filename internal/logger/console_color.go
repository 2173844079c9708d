package logger

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/harrison/briefflow/internal/models"
)

// colorScheme defines consistent colors for summary counts.
// Green: succeeded. Red: failed. Yellow: skipped or waiting. Cyan: labels.
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
	header  *color.Color
}

// newColorScheme creates the standard color scheme. With enabled false every
// color prints plain text.
func newColorScheme(enabled bool) *colorScheme {
	s := &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
		header:  color.New(color.Bold),
	}
	if !enabled {
		for _, c := range []*color.Color{s.success, s.fail, s.warn, s.label, s.header} {
			c.DisableColor()
		}
	}
	return s
}

// formatCount formats "label: n", coloring the label only when n is non-zero.
func formatCount(label string, n int, c *color.Color) string {
	if n == 0 {
		return fmt.Sprintf("%s: %d", label, n)
	}
	return fmt.Sprintf("%s: %d", c.Sprint(label), n)
}

// statusColor maps a task status to its console color.
func statusColor(s models.TaskStatus) *color.Color {
	switch s {
	case models.StatusSucceeded:
		return color.New(color.FgGreen)
	case models.StatusFailed:
		return color.New(color.FgRed)
	case models.StatusSkipped, models.StatusAwaitingReview:
		return color.New(color.FgYellow)
	case models.StatusRunning:
		return color.New(color.FgCyan)
	default:
		return color.New(color.Reset)
	}
}

// runStatusColor maps a run status to its console color.
func runStatusColor(s models.RunStatus, enabled bool) *color.Color {
	var c *color.Color
	switch s {
	case models.RunSucceeded:
		c = color.New(color.FgGreen, color.Bold)
	case models.RunFailed:
		c = color.New(color.FgRed, color.Bold)
	case models.RunCancelled, models.RunAwaitingReview:
		c = color.New(color.FgYellow, color.Bold)
	default:
		c = color.New(color.FgCyan)
	}
	if !enabled {
		c.DisableColor()
	}
	return c
}
