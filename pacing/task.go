package pacing

import (
	"math"
	"sync/atomic"
	"time"
)

// Disposition is the outcome of producing one frame, or of a whole quantum.
type Disposition int

const (
	// Continue asks for the next frame within the same quantum.
	Continue Disposition = iota
	// RescheduleLater yields and resubmits the task for the next cycle.
	RescheduleLater
	// Park drops synchronization; the task stays off the scheduler until Wakeup.
	Park
	// Terminate ends the stream; the task is never resubmitted.
	Terminate
)

func (d Disposition) String() string {
	switch d {
	case Continue:
		return "continue"
	case RescheduleLater:
		return "reschedule"
	case Park:
		return "park"
	case Terminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// task is the single cooperative unit of work of a Source. It is reused
// across start/stop cycles; every Start and Stop moves it to a new epoch,
// which invalidates submissions made in the previous one.
type task struct {
	source *Source
	queue  int

	anchor atomic.Pointer[time.Time]
	epoch  atomic.Uint64
}

func newTask(s *Source, queue int) *task {
	t := &task{source: s, queue: queue}
	t.anchor.Store(&time.Time{})

	return t
}

func (t *task) reinit(now time.Time) {
	t.anchor.Store(&now)
	t.epoch.Add(1)
}

func (t *task) cancel() {
	t.epoch.Add(1)
}

func (t *task) currentEpoch() uint64 {
	return t.epoch.Load()
}

func (t *task) submit(epoch uint64) {
	t.source.scheduler.Submit(submission{task: t, epoch: epoch}, t.queue)
}

// submission is one entry of the task in a scheduler queue.
type submission struct {
	task  *task
	epoch uint64
}

func (s submission) Perform() {
	s.task.perform(s.epoch)
}

func (s submission) Cancelled() bool {
	return s.task.epoch.Load() != s.epoch
}

func (s submission) String() string {
	return s.task.source.name
}

func (t *task) perform(epoch uint64) {
	s := t.source

	due := t.anchor.Load().Add(s.InitialDelay())
	if due.After(s.scheduler.Clock().Now()) {
		t.submit(epoch)

		return
	}

	// wakeups seen from here on are covered by the pulls of this quantum
	s.wakePending.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("%s: pacing panic: %v", s.name, r)
			s.park(epoch)
		}
	}()

	switch s.runQuantum(epoch) {
	case RescheduleLater:
		t.submit(epoch)
	case Park:
		s.park(epoch)
	case Terminate:
		s.complete(epoch)
	}
}

// runQuantum produces frames until the quantum budget is used up or the
// generator runs dry. It gives up as soon as a Stop or Start moves the task
// to another epoch.
func (s *Source) runQuantum(epoch uint64) Disposition {
	b := newBudget(s.quantum)
	for first := true; ; first = false {
		if s.task.currentEpoch() != epoch {
			// park ignores stale epochs
			return Park
		}
		if d := s.produce(epoch, first, &b); d != Continue {
			return d
		}
		if b.Exhausted() {
			return RescheduleLater
		}
	}
}

// produce pulls, stamps and delivers one frame.
func (s *Source) produce(epoch uint64, first bool, b *budget) Disposition {
	ts := time.Duration(s.timestamp.Load())

	frame := s.generator.NextFrame(ts)
	if s.task.currentEpoch() != epoch {
		// restarted during the pull; the frame belongs to no run
		return Park
	}
	if frame == nil {
		if first {
			return Park
		}

		return RescheduleLater
	}

	sn := s.sn.Load()
	frame.Timestamp = ts
	frame.SequenceNumber = sn

	ts += frame.Duration
	s.timestamp.Store(int64(ts))
	b.Use(frame.Duration)
	if sn == math.MaxInt64 {
		s.sn.Store(0)
	} else {
		s.sn.Store(sn + 1)
	}

	if total := s.Duration(); total > 0 && ts >= total {
		frame.EOM = true
	}

	// the sink owns the frame after Accept
	eom, duration, length := frame.EOM, frame.Duration, frame.Len()

	if ref := s.sink.Load(); ref != nil {
		ref.Accept(frame)
	}

	s.txPackets.Add(1)
	s.txBytes.Add(int64(length))

	if eom {
		return Terminate
	}
	if duration <= 0 {
		return Park
	}

	return Continue
}

func (s *Source) park(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task.currentEpoch() != epoch {
		return
	}
	if s.wakePending.Swap(false) {
		s.task.submit(epoch)

		return
	}
	s.synchronized.Store(false)
	s.syncLoss.Add(1)
}

func (s *Source) complete(epoch uint64) {
	s.mu.Lock()
	current := s.task.currentEpoch() == epoch
	if current {
		s.started.Store(false)
	}
	s.mu.Unlock()

	if current {
		s.listener.Completed()
	}
}
