package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Progress draws a single "label: n/total (p%)" line that is rewritten in
// place with a carriage return. The zero total draws nothing.
type Progress struct {
	mu    sync.Mutex
	w     io.Writer
	label string
	done  int
	total int
}

// NewProgress returns a Progress writing to w, or stderr when w is nil.
func NewProgress(w io.Writer, label string) *Progress {
	if w == nil {
		w = os.Stderr
	}
	if label == "" {
		label = "items"
	}
	return &Progress{w: w, label: label}
}

// Start resets the counter for total items.
func (p *Progress) Start(total int) {
	p.set(0, total)
}

// Step records that done items have completed.
func (p *Progress) Step(done int) {
	p.mu.Lock()
	total := p.total
	p.mu.Unlock()
	p.set(done, total)
}

// Finish completes the line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = p.total
	p.draw()
	fmt.Fprintln(p.w)
}

// Fail ends the line with err.
func (p *Progress) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\nerror after %d/%d %s: %v\n", p.done, p.total, p.label, err)
}

func (p *Progress) set(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done, p.total = done, total
	p.draw()
}

// draw requires p.mu.
func (p *Progress) draw() {
	if p.total <= 0 {
		return
	}
	pct := 100 * p.done / p.total
	fmt.Fprintf(p.w, "\r%s: %d/%d (%d%%)", p.label, p.done, p.total, pct)
}
