package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ProgressBar renders run completion as an ASCII bar, e.g. "[=====     ] 2/4 (50%)".
type ProgressBar struct {
	current     int
	total       int
	width       int
	enableColor bool
	mu          sync.RWMutex
}

// NewProgressBar creates a new progress bar. A width below 1 becomes 10.
func NewProgressBar(total, width int, enableColor bool) *ProgressBar {
	if width < 1 {
		width = 10
	}
	return &ProgressBar{
		total:       total,
		width:       width,
		enableColor: enableColor,
	}
}

// Update sets the current progress value
func (pb *ProgressBar) Update(current int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = current
}

// Increment increments the current progress by 1
func (pb *ProgressBar) Increment() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
}

// Percentage returns the progress percentage clamped to 0-100.
func (pb *ProgressBar) Percentage() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.percentage()
}

func (pb *ProgressBar) percentage() int {
	if pb.total == 0 {
		return 0
	}
	perc := (pb.current * 100) / pb.total
	if perc > 100 {
		return 100
	}
	if perc < 0 {
		return 0
	}
	return perc
}

// Render generates the bar string. Cyan while in progress, green when complete.
func (pb *ProgressBar) Render() string {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	perc := pb.percentage()
	filled := (perc * pb.width) / 100
	bar := "[" + strings.Repeat("=", filled) + strings.Repeat(" ", pb.width-filled) + "]"
	result := fmt.Sprintf("%s %d/%d (%d%%)", bar, pb.current, pb.total, perc)

	if !pb.enableColor {
		return result
	}
	c := color.New(color.FgCyan)
	if perc == 100 {
		c = color.New(color.FgGreen)
	}
	c.EnableColor()
	return c.Sprint(result)
}
