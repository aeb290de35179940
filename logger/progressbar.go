package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const barWidth = 40

// ProgressBar redraws one status line per finished asset with a running
// failure count. A silent bar only keeps counts.
type ProgressBar struct {
	mu      sync.Mutex
	out     io.Writer
	label   string
	started time.Time

	total  int
	done   int
	failed int

	finished bool
	silent   bool
}

func NewProgressBar(total int, label string, out io.Writer) *ProgressBar {
	return &ProgressBar{out: out, label: label, total: total, started: time.Now()}
}

// Step marks one asset as finished.
func (p *ProgressBar) Step(failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done < p.total {
		p.done++
	}
	if failed {
		p.failed++
	}
	p.draw()
}

// Counts returns the finished and failed totals so far.
func (p *ProgressBar) Counts() (done, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, p.failed
}

// Complete draws the final state and ends the line. Later calls do nothing.
func (p *ProgressBar) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}
	p.draw()
	p.finished = true
	if !p.silent && p.total > 0 {
		fmt.Fprintln(p.out)
	}
}

func (p *ProgressBar) draw() {
	if p.finished || p.silent || p.total <= 0 {
		return
	}

	filled := barWidth * p.done / p.total
	line := fmt.Sprintf("\r%s [%s%s] %d/%d", p.label,
		strings.Repeat("█", filled), strings.Repeat("░", barWidth-filled), p.done, p.total)
	if p.failed > 0 {
		line += fmt.Sprintf(" (%d failed)", p.failed)
	}
	if remaining := p.total - p.done; p.done > 0 && remaining > 0 {
		perAsset := time.Since(p.started) / time.Duration(p.done)
		line += " ETA " + (perAsset * time.Duration(remaining)).Round(time.Second).String()
	}
	fmt.Fprint(p.out, line+" ")
}
