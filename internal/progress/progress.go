// Package progress draws a progress line on stderr while captures are
// dissected.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const barWidth = 30

// Bar tracks files done out of a known total and frames dissected so far.
// Frame may be called from engine worker goroutines.
type Bar struct {
	mu         sync.Mutex
	output     io.Writer
	enabled    bool
	total      int
	done       int
	frames     int64
	file       string
	startTime  time.Time
	lastUpdate time.Time
	interval   time.Duration
}

// New returns a bar over totalFiles files writing to stderr.
func New(totalFiles int) *Bar {
	return &Bar{
		output:    os.Stderr,
		enabled:   true,
		total:     totalFiles,
		startTime: time.Now(),
		interval:  100 * time.Millisecond,
	}
}

// SetOutput redirects the bar, mainly for tests.
func (b *Bar) SetOutput(w io.Writer) {
	b.mu.Lock()
	b.output = w
	b.mu.Unlock()
}

// Disable turns all output off.
func (b *Bar) Disable() {
	b.mu.Lock()
	b.enabled = false
	b.mu.Unlock()
}

// StartFile names the file being read.
func (b *Bar) StartFile(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.file = filepath.Base(path)
	b.render(true)
}

// Frame counts one dissected frame.
func (b *Bar) Frame() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames++
	b.render(false)
}

// FinishFile marks the current file done.
func (b *Bar) FinishFile() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done++
	b.render(true)
}

// Finish draws the final state and ends the line.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled {
		return
	}
	b.file = ""
	b.render(true)
	fmt.Fprint(b.output, "\n")
}

// render draws the line; unforced updates are throttled.
func (b *Bar) render(force bool) {
	if !b.enabled {
		return
	}
	now := time.Now()
	if !force && now.Sub(b.lastUpdate) < b.interval {
		return
	}
	b.lastUpdate = now

	filled := 0
	if b.total > 0 {
		filled = barWidth * b.done / b.total
	}
	if filled > barWidth {
		filled = barWidth
	}
	bar := make([]byte, barWidth)
	for i := range bar {
		switch {
		case i < filled:
			bar[i] = '='
		case i == filled:
			bar[i] = '>'
		default:
			bar[i] = '-'
		}
	}

	line := fmt.Sprintf("\r[%s] %d/%d files | %s frames | %s",
		string(bar), b.done, b.total, humanize.Comma(b.frames), formatDuration(time.Since(b.startTime)))
	if b.file != "" {
		line += " | " + b.file
	}
	fmt.Fprint(b.output, line)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
