package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker writes a self-overwriting progress line.
type ProgressTracker struct {
	mu       sync.Mutex
	w        io.Writer
	total    int
	every    int
	current  int
	reported int
	start    time.Time
	started  bool
}

// NewProgressTracker reports to w each time at least every more documents
// out of total have been processed.
func NewProgressTracker(w io.Writer, total, every int) *ProgressTracker {
	if w == nil {
		w = io.Discard
	}
	if every < 1 {
		every = 1
	}
	return &ProgressTracker{w: w, total: total, every: every}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = time.Now()
	p.started = true
	p.current = 0
	p.reported = 0
}

// Update sets the number of processed documents, capped at the total.
func (p *ProgressTracker) Update(current int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set(current)
}

// Increment adds delta processed documents.
func (p *ProgressTracker) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set(p.current + delta)
}

func (p *ProgressTracker) set(current int) {
	if !p.started {
		return
	}
	p.current = min(current, p.total)
	if p.current-p.reported >= p.every {
		p.report()
	}
}

// Finish reports completion and ends the line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.current = p.total
	p.report()
	fmt.Fprintln(p.w)
}

// Elapsed returns the time since Start.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return 0
	}
	return time.Since(p.start)
}

// report must be called with mu held.
func (p *ProgressTracker) report() {
	p.reported = p.current
	percent := 0.0
	if p.total > 0 {
		percent = float64(p.current) / float64(p.total) * 100
	}
	rate := 0.0
	if secs := time.Since(p.start).Seconds(); secs > 0 {
		rate = float64(p.current) / secs
	}
	fmt.Fprintf(p.w, "\rReembedding: %d/%d documents (%.1f%%) %.1f documents/s",
		p.current, p.total, percent, rate)
}
