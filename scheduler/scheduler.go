// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package scheduler implements a cooperative cycle scheduler. Tasks are
// submitted to numbered queues and run once per cycle on a small worker pool;
// a task that wants to run again submits itself for the next cycle.
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPeriod = 20 * time.Millisecond
	defaultQueues = 4
)

// Task is a unit of cooperative work. Perform must not block.
type Task interface {
	// Perform runs one quantum of work.
	Perform()

	// Cancelled reports whether the task should be dropped instead of run.
	Cancelled() bool
}

// Scheduler runs submitted tasks in cycles. Every cycle takes a snapshot of
// the pending submissions and drains the queues in ascending order, so a task
// submitted while a cycle is running is picked up by the next cycle and never
// overlaps with its own previous run.
type Scheduler struct {
	clock      Clock
	period     time.Duration
	queueCount int
	workers    int

	mu      sync.Mutex
	pending [][]Task

	cycleMu sync.Mutex
	queues  *roundRobin

	cycles  atomic.Uint64
	dropped atomic.Uint64

	log logging.LeveledLogger
}

// New returns a Scheduler configured by opts.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:      SystemClock{},
		period:     defaultPeriod,
		queueCount: defaultQueues,
		workers:    runtime.GOMAXPROCS(0),
		log:        logging.NewDefaultLoggerFactory().NewLogger("scheduler"),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.pending = make([][]Task, s.queueCount)
	s.queues = &roundRobin{size: s.queueCount}

	return s
}

// Clock returns the clock tasks are paced against.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Period returns the cycle period used by Run.
func (s *Scheduler) Period() time.Duration {
	return s.period
}

// Queues returns the number of affinity queues.
func (s *Scheduler) Queues() int {
	return s.queueCount
}

// NextQueue returns a queue number for a new task, rotating over all queues.
func (s *Scheduler) NextQueue() int {
	q, _ := s.queues.Next()

	return q
}

// Submit enqueues task on queue for the next cycle. Queue numbers outside
// [0, Queues()) are folded onto the available queues.
func (s *Scheduler) Submit(task Task, queue int) {
	if task == nil {
		return
	}
	queue %= s.queueCount
	if queue < 0 {
		queue += s.queueCount
	}

	s.mu.Lock()
	s.pending[queue] = append(s.pending[queue], task)
	s.mu.Unlock()
}

// Pending returns the number of tasks waiting for the next cycle.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, q := range s.pending {
		n += len(q)
	}

	return n
}

// Cycles returns the number of completed cycles.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

// Dropped returns the number of cancelled submissions skipped at dispatch.
func (s *Scheduler) Dropped() uint64 {
	return s.dropped.Load()
}

// Cycle runs one cycle synchronously and returns once every task of the
// snapshot has returned.
func (s *Scheduler) Cycle() {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = make([][]Task, s.queueCount)
	s.mu.Unlock()

	for queue, tasks := range batch {
		if len(tasks) == 0 {
			continue
		}

		var group errgroup.Group
		group.SetLimit(s.workers)
		for _, task := range tasks {
			if task.Cancelled() {
				s.dropped.Add(1)

				continue
			}
			group.Go(func() error {
				s.perform(queue, task)

				return nil
			})
		}
		_ = group.Wait()
	}

	s.cycles.Add(1)
}

// Run executes a cycle every period until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.log.Debugf("running %d queues every %v", s.queueCount, s.period)
	for {
		select {
		case <-ticker.C:
			s.Cycle()
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Scheduler) perform(queue int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("task %v on queue %d panicked: %v", task, queue, r)
		}
	}()

	task.Perform()
}
