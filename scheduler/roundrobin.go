package scheduler

import "sync"

// roundRobin hands out queue numbers in turn so that sources created one
// after another spread over the available queues.
type roundRobin struct {
	mu    sync.Mutex
	size  int
	index int
}

func (rr *roundRobin) Next() (int, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if rr.size == 0 {
		return 0, false
	}

	item := rr.index
	rr.index = (rr.index + 1) % rr.size

	return item, true
}
