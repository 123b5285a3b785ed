package service

import "sync"

// ProgressReporter is a monotonic progress estimator. Reported values never
// decrease and are clamped to [0, 100]; the UI can therefore render every
// update without reordering checks.
type ProgressReporter struct {
	mu      sync.Mutex
	current int
	onTick  func(percent int)
}

func NewProgressReporter(onTick func(percent int)) *ProgressReporter {
	return &ProgressReporter{onTick: onTick}
}

// Report advances progress to percent if it is ahead of the current value.
func (p *ProgressReporter) Report(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	p.mu.Lock()
	if percent <= p.current {
		p.mu.Unlock()
		return
	}
	p.current = percent
	tick := p.onTick
	p.mu.Unlock()

	if tick != nil {
		tick(percent)
	}
}

// Current returns the last reported value.
func (p *ProgressReporter) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
