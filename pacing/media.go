package pacing

import "time"

// Generator produces the frames a Source paces out.
type Generator interface {
	// NextFrame returns the frame starting at media time timestamp, or nil
	// when no data is available right now. It must not block.
	NextFrame(timestamp time.Duration) *Frame
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(timestamp time.Duration) *Frame

// NextFrame calls f(timestamp).
func (f GeneratorFunc) NextFrame(timestamp time.Duration) *Frame {
	return f(timestamp)
}

// Sink consumes the frames pushed by a Source.
type Sink interface {
	// Start is called when the source starts, or on Connect if it already has.
	Start()

	// Stop is called when the source stops or the sink is disconnected.
	Stop()

	// Accept receives one stamped frame. It is called from the pacing task
	// and must not block.
	Accept(frame *Frame)
}

// Listener receives lifecycle notifications from a Source. Started, Stopped
// and Failed run with the source lock held and must not call back into
// Start, Stop or Wakeup; Completed runs from the pacing task without it.
type Listener interface {
	Started()
	Stopped()
	Failed(err error)
	Completed()
}

// ListenerFuncs implements Listener with optional callbacks. Nil fields are
// no-ops.
type ListenerFuncs struct {
	OnStarted   func()
	OnStopped   func()
	OnFailed    func(err error)
	OnCompleted func()
}

var _ Listener = ListenerFuncs{}

// Started calls OnStarted if set.
func (l ListenerFuncs) Started() {
	if l.OnStarted != nil {
		l.OnStarted()
	}
}

// Stopped calls OnStopped if set.
func (l ListenerFuncs) Stopped() {
	if l.OnStopped != nil {
		l.OnStopped()
	}
}

// Failed calls OnFailed if set.
func (l ListenerFuncs) Failed(err error) {
	if l.OnFailed != nil {
		l.OnFailed(err)
	}
}

// Completed calls OnCompleted if set.
func (l ListenerFuncs) Completed() {
	if l.OnCompleted != nil {
		l.OnCompleted()
	}
}
