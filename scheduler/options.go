package scheduler

import (
	"time"

	"github.com/pion/logging"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithQueues sets the number of affinity queues. Values below one are ignored.
func WithQueues(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.queueCount = n
		}
	}
}

// WithWorkers bounds how many tasks of one queue run at the same time.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithPeriod sets the cycle period used by Run.
func WithPeriod(period time.Duration) Option {
	return func(s *Scheduler) {
		if period > 0 {
			s.period = period
		}
	}
}

// WithClock replaces the system clock.
func WithClock(clock Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLoggerFactory sets the factory the scheduler logger is created from.
func WithLoggerFactory(factory logging.LoggerFactory) Option {
	return func(s *Scheduler) {
		s.log = factory.NewLogger("scheduler")
	}
}
