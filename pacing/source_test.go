package pacing

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalekseevx/framepacer/scheduler"
)

// recordingScheduler queues submissions until step is called.
type recordingScheduler struct {
	mu          sync.Mutex
	clock       *scheduler.ManualClock
	pending     []scheduler.Task
	submissions int
	queues      []int
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{
		clock: scheduler.NewManualClock(time.Unix(1000, 0)),
	}
}

func (r *recordingScheduler) Submit(task scheduler.Task, queue int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, task)
	r.submissions++
	r.queues = append(r.queues, queue)
}

func (r *recordingScheduler) Clock() scheduler.Clock {
	return r.clock
}

func (r *recordingScheduler) Submissions() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.submissions
}

// step runs every live submission queued so far and returns how many ran.
func (r *recordingScheduler) step() int {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	ran := 0
	for _, task := range batch {
		if task.Cancelled() {
			continue
		}
		task.Perform()
		ran++
	}

	return ran
}

type recordingSink struct {
	mu      sync.Mutex
	starts  int
	stops   int
	frames  []Frame
	running bool
}

func (r *recordingSink) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	r.running = true
}

func (r *recordingSink) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	r.running = false
}

func (r *recordingSink) Accept(frame *Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, *frame)
}

func (r *recordingSink) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Frame(nil), r.frames...)
}

// sequence returns frames with the given durations, then nothing.
func sequence(durations ...time.Duration) (Generator, *int) {
	calls := 0
	next := 0

	return GeneratorFunc(func(time.Duration) *Frame {
		calls++
		if next >= len(durations) {
			return nil
		}
		d := durations[next]
		next++

		return &Frame{Data: make([]byte, 10), Duration: d}
	}), &calls
}

// constant returns an endless stream of equal frames.
func constant(d time.Duration, size int) Generator {
	return GeneratorFunc(func(time.Duration) *Frame {
		return &Frame{Data: make([]byte, size), Duration: d}
	})
}

type listenerLog struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (l *listenerLog) funcs() ListenerFuncs {
	add := func(e string) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, e)
	}

	return ListenerFuncs{
		OnStarted: func() { add("started") },
		OnStopped: func() { add("stopped") },
		OnFailed: func(err error) {
			add("failed")
			l.mu.Lock()
			l.errs = append(l.errs, err)
			l.mu.Unlock()
		},
		OnCompleted: func() { add("completed") },
	}
}

func (l *listenerLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.events...)
}

func TestSource_MediaTimeIsOffsetPlusDurations(t *testing.T) {
	sched := newRecordingScheduler()
	durations := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 5 * time.Millisecond, 40 * time.Millisecond}
	gen, _ := sequence(durations...)
	sink := &recordingSink{}

	src := NewSource("test", sched, 0, gen, WithQuantum(time.Second), WithSink(sink))
	src.SetMediaTime(7 * time.Millisecond)
	src.Start()
	sched.step()

	assert.Equal(t, 82*time.Millisecond, src.MediaTime())
	frames := sink.Frames()
	require.Len(t, frames, 4)
	expected := 7 * time.Millisecond
	for i, f := range frames {
		assert.Equal(t, expected, f.Timestamp)
		assert.Equal(t, int64(i), f.SequenceNumber)
		expected += f.Duration
	}
	assert.Equal(t, int64(4), src.PacketsTransmitted())
	assert.Equal(t, int64(40), src.BytesTransmitted())
}

func TestSource_SequenceNumberWrapsToZero(t *testing.T) {
	sched := newRecordingScheduler()
	sink := &recordingSink{}
	src := NewSource("wrap", sched, 0, constant(10*time.Millisecond, 1), WithQuantum(30*time.Millisecond), WithSink(sink))

	src.Start()
	src.sn.Store(math.MaxInt64 - 1)
	sched.step()

	frames := sink.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, int64(math.MaxInt64-1), frames[0].SequenceNumber)
	assert.Equal(t, int64(math.MaxInt64), frames[1].SequenceNumber)
	assert.Equal(t, int64(0), frames[2].SequenceNumber)
	assert.Equal(t, int64(1), src.Stats().SequenceNumber)
}

func TestSource_NoDataOnFirstAttemptParks(t *testing.T) {
	sched := newRecordingScheduler()
	gen, calls := sequence()
	src := NewSource("idle", sched, 3, gen)

	src.Start()
	require.Equal(t, 1, sched.Submissions())
	sched.step()

	assert.Equal(t, 1, *calls)
	assert.Equal(t, time.Duration(0), src.MediaTime())
	assert.True(t, src.IsStarted())
	assert.False(t, src.IsSynchronized())
	assert.Equal(t, 0, sched.step())
	assert.Equal(t, 1, sched.Submissions())

	src.Wakeup()
	assert.True(t, src.IsSynchronized())
	assert.Equal(t, 2, sched.Submissions())
	assert.Equal(t, []int{3, 3}, sched.queues)

	// already synchronized: nothing more to submit
	src.Wakeup()
	assert.Equal(t, 2, sched.Submissions())
	assert.Equal(t, int64(1), src.Stats().SyncLosses)
}

func TestSource_NoDataAfterFramesReschedules(t *testing.T) {
	sched := newRecordingScheduler()
	gen, calls := sequence(5*time.Millisecond, 5*time.Millisecond)
	src := NewSource("transient", sched, 0, gen)

	src.Start()
	sched.step()

	assert.Equal(t, 3, *calls)
	assert.True(t, src.IsSynchronized())
	assert.Equal(t, 2, sched.Submissions())
	assert.Equal(t, 10*time.Millisecond, src.MediaTime())

	// the next quantum starts dry and parks
	sched.step()
	assert.False(t, src.IsSynchronized())
	assert.Equal(t, 2, sched.Submissions())
}

func TestSource_TotalDurationTerminates(t *testing.T) {
	sched := newRecordingScheduler()
	sink := &recordingSink{}
	events := &listenerLog{}
	src := NewSource("bounded", sched, 0, constant(20*time.Millisecond, 160),
		WithDuration(100*time.Millisecond),
		WithQuantum(20*time.Millisecond),
		WithSink(sink),
		WithListener(events.funcs()),
	)

	src.Start()
	for i := 1; i <= 5; i++ {
		require.Equal(t, 1, sched.step(), "quantum %d", i)
		assert.Len(t, sink.Frames(), i)
	}

	assert.Equal(t, 0, sched.step())
	assert.Equal(t, 5, sched.Submissions())

	frames := sink.Frames()
	for i, f := range frames[:4] {
		assert.False(t, f.EOM, "frame %d", i)
	}
	assert.True(t, frames[4].EOM)
	assert.Equal(t, 80*time.Millisecond, frames[4].Timestamp)
	assert.Equal(t, 100*time.Millisecond, src.MediaTime())
	assert.False(t, src.IsStarted())
	assert.Equal(t, []string{"started", "completed"}, events.Events())
}

func TestSource_GeneratorEOMTerminatesFirst(t *testing.T) {
	sched := newRecordingScheduler()
	sink := &recordingSink{}
	n := 0
	gen := GeneratorFunc(func(time.Duration) *Frame {
		n++

		return &Frame{Data: []byte{1}, Duration: 10 * time.Millisecond, EOM: n == 2}
	})
	src := NewSource("eom", sched, 0, gen, WithDuration(time.Second), WithQuantum(time.Second), WithSink(sink))

	src.Start()
	sched.step()

	assert.Len(t, sink.Frames(), 2)
	assert.False(t, src.IsStarted())
	assert.Equal(t, 1, sched.Submissions())

	// a terminated source cannot be woken up
	src.Wakeup()
	assert.Equal(t, 1, sched.Submissions())
}

func TestSource_NonPositiveDurationParks(t *testing.T) {
	sched := newRecordingScheduler()
	gen, calls := sequence(10*time.Millisecond, 0, 10*time.Millisecond)
	src := NewSource("malformed", sched, 0, gen, WithQuantum(time.Second))

	src.Start()
	sched.step()

	assert.Equal(t, 2, *calls)
	assert.False(t, src.IsSynchronized())
	assert.True(t, src.IsStarted())
	assert.Equal(t, int64(2), src.PacketsTransmitted())
	assert.Equal(t, 1, sched.Submissions())
}

func TestSource_StartTwiceIsNoop(t *testing.T) {
	sched := newRecordingScheduler()
	events := &listenerLog{}
	src := NewSource("twice", sched, 0, constant(20*time.Millisecond, 100), WithListener(events.funcs()))

	src.Start()
	sched.step()
	require.Equal(t, int64(1), src.PacketsTransmitted())

	src.Start()
	assert.Equal(t, int64(1), src.PacketsTransmitted())
	assert.Equal(t, 20*time.Millisecond, src.MediaTime())
	assert.Equal(t, 2, sched.Submissions())
	assert.Equal(t, []string{"started"}, events.Events())
}

func TestSource_StopBeforeStartIsNoop(t *testing.T) {
	sched := newRecordingScheduler()
	events := &listenerLog{}
	src := NewSource("never", sched, 0, constant(time.Millisecond, 1), WithListener(events.funcs()))

	assert.NotPanics(t, src.Stop)
	assert.NotPanics(t, src.Deactivate)
	assert.Empty(t, events.Events())
	assert.False(t, src.IsStarted())
	assert.Equal(t, 0, sched.Submissions())
}

func TestSource_StartWithoutSchedulerFails(t *testing.T) {
	events := &listenerLog{}
	sink := &recordingSink{}
	src := NewSource("orphan", nil, 0, constant(time.Millisecond, 1), WithListener(events.funcs()), WithSink(sink))

	assert.NotPanics(t, src.Start)
	assert.False(t, src.IsStarted())
	assert.Equal(t, []string{"failed"}, events.Events())
	require.Len(t, events.errs, 1)
	assert.ErrorIs(t, events.errs[0], ErrNoScheduler)
	assert.Equal(t, 0, sink.starts)
}

func TestSource_StartRecoversFromPanickingSink(t *testing.T) {
	sched := newRecordingScheduler()
	events := &listenerLog{}
	src := NewSource("panicky", sched, 0, constant(time.Millisecond, 1),
		WithListener(events.funcs()),
		WithSink(panicSink{}),
	)

	assert.NotPanics(t, src.Start)
	assert.False(t, src.IsStarted())
	assert.Equal(t, []string{"failed"}, events.Events())
	assert.ErrorIs(t, events.errs[0], errStartPanic)
}

type panicSink struct{}

func (panicSink) Start()        { panic("boom") }
func (panicSink) Stop()         {}
func (panicSink) Accept(*Frame) {}

func TestSource_InitialDelay(t *testing.T) {
	sched := newRecordingScheduler()
	gen, calls := sequence(20*time.Millisecond, 20*time.Millisecond)
	src := NewSource("delayed", sched, 0, gen, WithInitialDelay(40*time.Millisecond))

	src.Start()
	sched.step()
	assert.Equal(t, 0, *calls)
	assert.Equal(t, 2, sched.Submissions())

	sched.clock.Advance(20 * time.Millisecond)
	sched.step()
	assert.Equal(t, 0, *calls)

	sched.clock.Advance(20 * time.Millisecond)
	sched.step()
	assert.Equal(t, 1, *calls)
	assert.Equal(t, 20*time.Millisecond, src.MediaTime())
}

func TestSource_StopCancelsAndResetsMediaTime(t *testing.T) {
	sched := newRecordingScheduler()
	sink := &recordingSink{}
	events := &listenerLog{}
	src := NewSource("stopper", sched, 0, constant(20*time.Millisecond, 10), WithSink(sink), WithListener(events.funcs()))

	src.SetMediaTime(time.Second)
	src.Start()
	sched.step()
	assert.Equal(t, time.Second+20*time.Millisecond, src.MediaTime())

	src.Stop()
	assert.Equal(t, time.Duration(0), src.MediaTime())
	assert.False(t, src.IsStarted())
	assert.Equal(t, 0, sched.step(), "pending submission must be cancelled")
	assert.Equal(t, 1, sink.stops)

	// the offset was consumed by the first start
	src.Start()
	assert.Equal(t, time.Duration(0), src.MediaTime())
	assert.Equal(t, int64(0), src.PacketsTransmitted())
	assert.Equal(t, 1, sched.step())
	assert.Equal(t, int64(0), sink.Frames()[1].SequenceNumber)
	assert.Equal(t, []string{"started", "stopped", "started"}, events.Events())
}

func TestSource_RestartDoesNotRunStaleSubmission(t *testing.T) {
	sched := newRecordingScheduler()
	sink := &recordingSink{}
	src := NewSource("restart", sched, 0, constant(20*time.Millisecond, 10), WithSink(sink))

	src.Start()
	src.Stop()
	src.Start()

	assert.Equal(t, 1, sched.step())
	assert.Len(t, sink.Frames(), 1)
}

func TestSource_ConnectWhileStarted(t *testing.T) {
	sched := newRecordingScheduler()
	src := NewSource("connect", sched, 0, constant(20*time.Millisecond, 10))

	first := &recordingSink{}
	src.Connect(first)
	assert.True(t, src.IsConnected())
	assert.Equal(t, 0, first.starts)

	src.Start()
	assert.Equal(t, 1, first.starts)

	second := &recordingSink{}
	src.Connect(second)
	assert.Equal(t, 1, second.starts)
	assert.Equal(t, 1, first.stops)

	sched.step()
	assert.Empty(t, first.Frames())
	assert.Len(t, second.Frames(), 1)

	src.Disconnect()
	assert.False(t, src.IsConnected())
	assert.Equal(t, 1, second.stops)

	// delivery without a sink still counts
	sched.step()
	assert.Equal(t, int64(2), src.PacketsTransmitted())
}

func TestSource_ReportAndReset(t *testing.T) {
	sched := newRecordingScheduler()
	src := NewSource("report", sched, 0, constant(20*time.Millisecond, 10))

	src.Activate()
	sched.step()
	assert.Contains(t, src.Report(), "report: started=true")
	assert.Contains(t, src.Report(), "packets=1 bytes=10")

	src.Reset()
	assert.Equal(t, int64(0), src.PacketsTransmitted())
	assert.Equal(t, int64(0), src.BytesTransmitted())
}

func TestSource_OnRealScheduler(t *testing.T) {
	clock := scheduler.NewManualClock(time.Unix(0, 0))
	sched := scheduler.New(scheduler.WithQueues(2), scheduler.WithWorkers(2), scheduler.WithClock(clock))
	sink := &recordingSink{}
	done := make(chan struct{})

	src := NewSource("real", sched, 1, constant(10*time.Millisecond, 8),
		WithDuration(60*time.Millisecond),
		WithSink(sink),
		WithListener(ListenerFuncs{OnCompleted: func() { close(done) }}),
	)
	src.Start()

	for i := 0; i < 3; i++ {
		sched.Cycle()
	}

	select {
	case <-done:
	default:
		t.Fatal("source did not complete")
	}
	assert.Len(t, sink.Frames(), 6)
	assert.Equal(t, 0, sched.Pending())
}

func TestDisposition_String(t *testing.T) {
	assert.Equal(t, "continue", Continue.String())
	assert.Equal(t, "reschedule", RescheduleLater.String())
	assert.Equal(t, "park", Park.String())
	assert.Equal(t, "terminate", Terminate.String())
	assert.Equal(t, "unknown", Disposition(42).String())
}

func TestSource_NonPositiveDurationIsUnbounded(t *testing.T) {
	src := NewSource("d", nil, 0, nil)
	assert.Equal(t, Unbounded, src.Duration())

	src.SetDuration(time.Second)
	assert.Equal(t, time.Second, src.Duration())

	src.SetDuration(0)
	assert.Equal(t, Unbounded, src.Duration())
}

func TestSource_WithSinkConnects(t *testing.T) {
	assert.True(t, NewSource("s", nil, 0, nil, WithSink(&recordingSink{})).IsConnected())
	assert.False(t, NewSource("s", nil, 0, nil, WithSink(nil)).IsConnected())
}

type acceptPanicSink struct {
	recordingSink
}

func (*acceptPanicSink) Accept(*Frame) { panic("bad sink") }

func TestSource_PanickingGeneratorParks(t *testing.T) {
	sched := newRecordingScheduler()
	fail := true
	gen := GeneratorFunc(func(time.Duration) *Frame {
		if fail {
			panic("bad generator")
		}

		return &Frame{Data: make([]byte, 10), Duration: 20 * time.Millisecond}
	})
	src := NewSource("panicking-generator", sched, 0, gen)

	src.Start()
	require.NotPanics(t, func() { sched.step() })
	assert.True(t, src.IsStarted())
	assert.False(t, src.IsSynchronized())
	assert.Equal(t, 1, sched.Submissions())

	fail = false
	src.Wakeup()
	assert.True(t, src.IsSynchronized())
	assert.Equal(t, 2, sched.Submissions())

	sched.step()
	assert.Equal(t, int64(1), src.PacketsTransmitted())
}

func TestSource_PanickingSinkParks(t *testing.T) {
	sched := newRecordingScheduler()
	sink := &acceptPanicSink{}
	src := NewSource("panicking-sink", sched, 0, constant(20*time.Millisecond, 10), WithSink(sink))

	src.Start()
	assert.Equal(t, 1, sink.starts)
	require.NotPanics(t, func() { sched.step() })
	assert.True(t, src.IsStarted())
	assert.False(t, src.IsSynchronized())
	assert.Equal(t, 1, sched.Submissions())

	src.Wakeup()
	assert.Equal(t, 2, sched.Submissions())
}

func TestSource_RestartDuringQuantumDropsStaleFrames(t *testing.T) {
	sched := newRecordingScheduler()
	sink := &recordingSink{}
	var src *Source
	calls := 0
	gen := GeneratorFunc(func(time.Duration) *Frame {
		calls++
		if calls == 2 {
			src.Stop()
			src.Start()
		}

		return &Frame{Data: make([]byte, 10), Duration: 5 * time.Millisecond}
	})
	src = NewSource("restart-in-quantum", sched, 0, gen, WithSink(sink))

	src.Start()
	sched.step()
	assert.Equal(t, 2, calls)
	require.Len(t, sink.Frames(), 1)
	assert.Equal(t, time.Duration(0), src.MediaTime())
	assert.Equal(t, int64(0), src.Stats().SequenceNumber)
	assert.True(t, src.IsSynchronized())

	sched.step()
	frames := sink.Frames()
	require.Len(t, frames, 5)
	assert.Equal(t, int64(0), frames[1].SequenceNumber)
	assert.Equal(t, time.Duration(0), frames[1].Timestamp)
	assert.Equal(t, int64(3), frames[4].SequenceNumber)
}

func TestSource_WakeupDuringQuantumResubmits(t *testing.T) {
	sched := newRecordingScheduler()
	var src *Source
	calls := 0
	gen := GeneratorFunc(func(time.Duration) *Frame {
		calls++
		if calls == 1 {
			src.Wakeup()
		}

		return nil
	})
	src = NewSource("late-wakeup", sched, 0, gen)

	src.Start()
	sched.step()
	assert.True(t, src.IsSynchronized())
	assert.Equal(t, 2, sched.Submissions())
	assert.Equal(t, int64(0), src.Stats().SyncLosses)

	sched.step()
	assert.Equal(t, 2, calls)
	assert.False(t, src.IsSynchronized())
	assert.Equal(t, 2, sched.Submissions())
}

func TestSource_ReconnectSameSinkIsNoop(t *testing.T) {
	sched := newRecordingScheduler()
	sink := &recordingSink{}
	src := NewSource("reconnect", sched, 0, constant(20*time.Millisecond, 10), WithSink(sink))

	src.Start()
	src.Connect(sink)
	assert.Equal(t, 1, sink.starts)
	assert.Equal(t, 0, sink.stops)
	assert.True(t, src.IsConnected())
}
