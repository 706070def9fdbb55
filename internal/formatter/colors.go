package formatter

import (
	"fmt"

	"github.com/emirozbir/micro-triage/internal/models"
)

// ANSI color codes for terminal output
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"

	// Foreground colors
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
	Gray    = "\033[90m"

	// Background colors
	BgRed    = "\033[41m"
	BgGreen  = "\033[42m"
	BgYellow = "\033[43m"
)

// palette applies colors only when enabled, so -no-color and piped output
// get plain text.
type palette struct {
	enabled bool
}

func (p palette) colorize(color, text string) string {
	if !p.enabled {
		return text
	}
	return fmt.Sprintf("%s%s%s", color, text, Reset)
}

func (p palette) bold(color, text string) string {
	if !p.enabled {
		return text
	}
	return fmt.Sprintf("%s%s%s%s", Bold, color, text, Reset)
}

func (p palette) title(text string) string   { return p.bold(Cyan, text) }
func (p palette) section(text string) string { return p.bold(Blue, text) }
func (p palette) info(text string) string    { return p.colorize(Cyan, text) }
func (p palette) muted(text string) string   { return p.colorize(Gray, text) }

func (p palette) actionBadge(action models.Action) string {
	switch action {
	case models.ActionEscalate:
		return p.bold(Red, "▲ ESCALATE")
	case models.ActionSuppress:
		return p.bold(Gray, "○ SUPPRESS")
	case models.ActionDeduplicate:
		return p.bold(Yellow, "≡ DEDUPLICATE")
	default:
		return p.bold(Gray, "• "+string(action))
	}
}

func (p palette) priorityBadge(priority string) string {
	switch priority {
	case "high":
		return p.bold(Red, "⚠ HIGH  ")
	case "medium":
		return p.bold(Yellow, "◉ MEDIUM")
	default:
		return p.bold(Green, "○ LOW   ")
	}
}

func (p palette) statusBadge(status models.Status) string {
	label := fmt.Sprintf(" %s ", status)
	if !p.enabled {
		return label
	}
	switch status {
	case models.StatusFailure:
		return fmt.Sprintf("%s%s%s%s", Bold, BgRed, label, Reset)
	case models.StatusError:
		return fmt.Sprintf("%s%s%s%s", Bold, BgYellow, label, Reset)
	case models.StatusSuccess:
		return fmt.Sprintf("%s%s%s%s", Bold, BgGreen, label, Reset)
	default:
		return label
	}
}
