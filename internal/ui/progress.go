package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Pre-computed progress bars to eliminate string allocations during transfer
var progressBars [21]string

func init() {
	for i := 0; i <= 20; i++ {
		progressBars[i] = strings.Repeat("=", i) + strings.Repeat(" ", 20-i)
	}
}

// redrawInterval caps how often the bar rewrites the terminal line.
const redrawInterval = 100 * time.Millisecond

// Bar is a single-line terminal progress bar fed by callbacks. Update is
// safe to call from any goroutine; drivers report progress from their own.
type Bar struct {
	Out   io.Writer
	Label string

	mu       sync.Mutex
	start    time.Time
	lastDraw time.Time
}

// Update redraws the bar for the given completion state. Redraws are
// throttled except when done reaches total.
func (b *Bar) Update(done, total uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.start.IsZero() {
		b.start = now
	}
	final := total > 0 && done >= total
	if !final && now.Sub(b.lastDraw) < redrawInterval {
		return
	}
	b.lastDraw = now

	pct := 100.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100.0
	}

	elapsed := now.Sub(b.start)
	speedStr := ""
	etaStr := ""
	if elapsed.Seconds() > 0.5 && done > 0 {
		rate := float64(done) / elapsed.Seconds()
		speedStr = FormatSpeed(rate)
		if total > done && rate > 0 {
			eta := time.Duration(float64(total-done) / rate * float64(time.Second))
			etaStr = FormatDuration(eta)
		}
	}

	line := fmt.Sprintf("\r%s[%-20s] %3.0f%% | %s/%s",
		b.Label, bar(pct), pct, FormatBytes(int64(done)), FormatBytes(int64(total)))
	if speedStr != "" {
		line += " | " + speedStr
	}
	if etaStr != "" {
		line += " | ETA: " + etaStr
	}
	_, _ = fmt.Fprint(b.Out, line)
}

// Finish terminates the bar's line.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, _ = fmt.Fprintln(b.Out)
}

func bar(pct float64) string {
	filled := int(pct / 5)
	if filled < 0 {
		filled = 0
	}
	if filled > 20 {
		filled = 20
	}
	return progressBars[filled]
}
