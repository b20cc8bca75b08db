package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/netcrate/nexa/internal/ops"
)

const barWidth = 30

// Progress draws a single-line progress bar fed by engine completion ticks
type Progress struct {
	mu            sync.Mutex
	w             io.Writer
	enabled       bool
	total         int
	done          int
	open          int
	start         time.Time
	lastUpdate    time.Time
	updateMinWait time.Duration
}

// NewProgress draws on stderr, and only when stderr is a terminal
func NewProgress(total int) *Progress {
	fd := os.Stderr.Fd()
	return NewProgressWriter(os.Stderr, total, isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
}

// NewProgressWriter draws on w. A disabled Progress swallows every tick.
func NewProgressWriter(w io.Writer, total int, enabled bool) *Progress {
	return &Progress{
		w:             w,
		enabled:       enabled,
		total:         total,
		start:         time.Now(),
		updateMinWait: 100 * time.Millisecond,
	}
}

// Tick records one finished port. Its signature matches ops.ProgressFunc.
func (p *Progress) Tick(done, total int, outcome ops.PortOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if done > p.done {
		p.done = done
	}
	p.total = total
	if outcome.Status == ops.StatusOpen {
		p.open++
	}

	if !p.enabled || time.Since(p.lastUpdate) < p.updateMinWait {
		return
	}
	p.draw()
}

// Finish draws the final state and ends the line
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled {
		return
	}
	p.draw()
	fmt.Fprintln(p.w)
}

func (p *Progress) draw() {
	fmt.Fprint(p.w, "\033[2K\r"+p.line())
	p.lastUpdate = time.Now()
}

func (p *Progress) line() string {
	pct := 1.0
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total)
	}
	filled := int(pct * barWidth)
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)
	return fmt.Sprintf("[%s] %3.0f%% %d/%d ports, %d open, %s",
		bar, pct*100, p.done, p.total, p.open, time.Since(p.start).Round(100*time.Millisecond))
}
