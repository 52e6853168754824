package transfer

import (
	"fmt"
	"io"
	"time"
)

// Bar draws a single-line progress bar.
type Bar struct {
	w     io.Writer
	label string
}

// NewBar returns a bar writing to w, usually stderr.
func NewBar(w io.Writer, label string) *Bar {
	return &Bar{w: w, label: label}
}

// Update matches ProgressFunc.
func (b *Bar) Update(transferred, total int64, speed float64, elapsed time.Duration) {
	if total <= 0 {
		fmt.Fprintf(b.w, "\r%s: %s %.2f MB/s Time: %ds",
			b.label, formatBytes(transferred), speed/1024/1024, int(elapsed.Seconds()))
		return
	}
	progress := float64(transferred) / float64(total) * 100
	if progress > 100 {
		progress = 100
	}
	fmt.Fprintf(b.w, "\r%s: [%s] %.1f%% %.2f MB/s Time: %ds",
		b.label, progressBar(progress), progress, speed/1024/1024, int(elapsed.Seconds()))
}

// Finish ends the progress line.
func (b *Bar) Finish() {
	fmt.Fprintln(b.w)
}

// progressBar creates a visual progress bar
func progressBar(progress float64) string {
	const width = 50
	pos := int(float64(width) * progress / 100)
	bar := make([]rune, width)
	for i := range bar {
		switch {
		case i < pos:
			bar[i] = '='
		case i == pos:
			bar[i] = '>'
		default:
			bar[i] = ' '
		}
	}
	return string(bar)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
