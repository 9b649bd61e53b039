package pacing

import (
	"time"

	"github.com/pion/logging"
)

// Option configures a Source.
type Option func(*Source)

// WithListener sets the lifecycle listener.
func WithListener(l Listener) Option {
	return func(s *Source) {
		if l != nil {
			s.listener = l
		}
	}
}

// WithQuantum sets how much media time one scheduler invocation may produce.
func WithQuantum(quantum time.Duration) Option {
	return func(s *Source) {
		if quantum > 0 {
			s.quantum = quantum
		}
	}
}

// WithDuration sets the total stream duration. See Source.SetDuration.
func WithDuration(d time.Duration) Option {
	return func(s *Source) {
		s.SetDuration(d)
	}
}

// WithInitialDelay sets the delay between Start and the first frame.
func WithInitialDelay(d time.Duration) Option {
	return func(s *Source) {
		s.SetInitialDelay(d)
	}
}

// WithSink connects sink at construction time.
func WithSink(sink Sink) Option {
	return func(s *Source) {
		if sink != nil {
			s.sink.Store(&sinkRef{Sink: sink})
		}
	}
}

// WithLoggerFactory sets the factory the source logger is created from.
func WithLoggerFactory(factory logging.LoggerFactory) Option {
	return func(s *Source) {
		s.log = factory.NewLogger("pacing")
	}
}
