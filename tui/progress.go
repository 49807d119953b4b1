package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const barWidth = 30

// Progress draws a single-line progress bar with an ETA. It is safe for
// concurrent use.
type Progress struct {
	mu    sync.Mutex
	out   io.Writer
	label string
	start time.Time
	last  time.Time
	every time.Duration
	now   func() time.Time
}

// NewProgress returns a bar that redraws on out at most every interval.
func NewProgress(out io.Writer, label string, every time.Duration) *Progress {
	p := &Progress{out: out, label: label, every: every, now: time.Now}
	p.start = p.now()
	return p
}

// Update redraws the bar. The final update is always drawn and ends the line.
func (p *Progress) Update(current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	final := current >= total
	if !final && now.Sub(p.last) < p.every {
		return
	}
	p.last = now

	fmt.Fprintf(p.out, "\r%s", Bar(current, total, now.Sub(p.start), p.label))
	if final {
		fmt.Fprintln(p.out)
	}
}

// Bar renders one progress line.
func Bar(current, total int, elapsed time.Duration, label string) string {
	filledStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7D56F4")).
		Background(lipgloss.Color("#7D56F4"))
	emptyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#3c3c3c")).
		Background(lipgloss.Color("#3c3c3c"))

	var fraction float64
	if total > 0 {
		fraction = min(float64(current)/float64(total), 1)
	}
	filled := int(fraction * barWidth)

	bar := filledStyle.Render(strings.Repeat("█", filled)) +
		emptyStyle.Render(strings.Repeat("░", barWidth-filled))

	eta := "..."
	if current > 0 {
		eta = FormatDuration(float64(total-current) * (elapsed.Seconds() / float64(current)))
	}
	return fmt.Sprintf("%s %s %d/%d (%.1f%%) ETA: %s", label, bar, current, total, fraction*100, eta)
}

// FormatBytes renders a size with binary units, e.g. "1.5 MB".
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration converts seconds to a human-readable duration
func FormatDuration(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.0fs", seconds)
	}
	minutes := int(seconds / 60)
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, int(seconds)%60)
	}
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
