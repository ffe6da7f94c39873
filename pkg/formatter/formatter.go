package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/zfogg/daredrop/pkg/output"
)

var (
	Bold    = color.New(color.Bold)
	Success = color.New(color.FgGreen)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Warning = color.New(color.FgYellow)
)

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	output.PrintSuccess(format, args...)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	output.PrintError(format, args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	output.PrintInfo(format, args...)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	output.PrintWarning(format, args...)
}

// PrintTable prints rows under headers
func PrintTable(title string, items interface{}, headers []string, rows [][]string) error {
	return output.PrintList(title, items, headers, rows)
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(title string, data map[string]interface{}) error {
	return output.PrintRecord(title, data)
}

// Truncate shortens s to max runes, appending an ellipsis
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// TimeAgo renders a timestamp relative to now
func TimeAgo(t time.Time, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// TimeLeft renders the remaining time until end, as "12m left" or "ended"
func TimeLeft(end time.Time, now time.Time) string {
	d := end.Sub(now)
	if d <= 0 {
		return "ended"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm left", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh %dm left", int(d.Hours()), int(d.Minutes())%60)
}

// Percent formats a 0..1 ratio
func Percent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// Flags joins scan flags for display
func Flags(flags []string) string {
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ", ")
}
