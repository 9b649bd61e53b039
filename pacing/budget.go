package pacing

import "time"

// budget bounds one quantum of the pacing task in media time.
type budget struct {
	Window time.Duration
	Used   time.Duration
}

func newBudget(window time.Duration) budget {
	return budget{Window: window}
}

func (b *budget) Use(d time.Duration) {
	b.Used += d
}

func (b *budget) Exhausted() bool {
	return b.Used >= b.Window
}
