// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package pacing implements the frame pacing core shared by every media
// source: it pulls frames from a Generator, stamps them with media time and
// sequence numbers, and pushes them to a Sink at real-time cadence by running
// as a cooperative task on a scheduler.
package pacing

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/aalekseevx/framepacer/scheduler"
)

// Unbounded is the total duration of a stream that never ends on its own.
const Unbounded time.Duration = -1

const defaultQuantum = 20 * time.Millisecond

// ErrNoScheduler is reported through Listener.Failed when a source without a
// scheduler is started.
var ErrNoScheduler = errors.New("scheduler is not assigned")

// Scheduler is the part of the cooperative scheduler a Source relies on.
type Scheduler interface {
	Submit(task scheduler.Task, queue int)
	Clock() scheduler.Clock
}

// Source paces the frames of a Generator out to a Sink.
//
// Counters, media time and the state flags are atomics written by the
// pacing task and read by anyone. Readers get eventual visibility of each
// value on its own; there is no consistency across fields, and a value is
// never rolled back once observed.
type Source struct {
	name      string
	scheduler Scheduler
	generator Generator
	listener  Listener
	quantum   time.Duration

	// mu serializes Start, Stop, Wakeup, Connect and Disconnect.
	mu sync.Mutex

	started      atomic.Bool
	synchronized atomic.Bool
	// wakePending records a Wakeup that arrived while the task was running.
	wakePending atomic.Bool

	timestamp     atomic.Int64
	initialOffset atomic.Int64
	sn            atomic.Int64
	duration      atomic.Int64
	initialDelay  atomic.Int64

	txPackets atomic.Int64
	txBytes   atomic.Int64
	syncLoss  atomic.Int64

	sink atomic.Pointer[sinkRef]
	task *task

	log logging.LeveledLogger
}

type sinkRef struct {
	Sink
}

// NewSource returns a stopped source named name that runs on queue of sched
// and takes its frames from gen.
func NewSource(name string, sched Scheduler, queue int, gen Generator, opts ...Option) *Source {
	s := &Source{
		name:      name,
		scheduler: sched,
		generator: gen,
		listener:  ListenerFuncs{},
		quantum:   defaultQuantum,
		log:       logging.NewDefaultLoggerFactory().NewLogger("pacing"),
	}
	s.duration.Store(int64(Unbounded))
	s.task = newTask(s, queue)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the name the source was created with.
func (s *Source) Name() string {
	return s.name
}

func (s *Source) String() string {
	return s.name
}

// Start resets the stream and begins pacing. Calling Start on a started
// source does nothing. Failures are reported through Listener.Failed and the
// log; they never reach the caller.
func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		return
	}

	if err := s.start(); err != nil {
		s.started.Store(false)
		s.task.cancel()
		s.listener.Failed(err)
		s.log.Errorf("%s: start failed: %v", s.name, err)
	}
}

func (s *Source) start() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errStartPanic, r)
		}
	}()

	if s.scheduler == nil {
		return ErrNoScheduler
	}

	s.txPackets.Store(0)
	s.txBytes.Store(0)

	s.timestamp.Store(s.initialOffset.Swap(0))
	s.sn.Store(0)

	s.started.Store(true)
	s.synchronized.Store(true)
	s.wakePending.Store(false)

	if ref := s.sink.Load(); ref != nil {
		ref.Start()
	}

	s.task.reinit(s.scheduler.Clock().Now())
	s.task.submit(s.task.currentEpoch())

	s.listener.Started()

	return nil
}

var errStartPanic = errors.New("panic during start")

// Wakeup puts a source that lost synchronization back on the scheduler.
// Generators may call it whenever new data arrives. A wakeup that lands while
// the task is still running is remembered, and the task is resubmitted
// instead of parking.
func (s *Source) Wakeup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Load() {
		return
	}
	if s.synchronized.Load() {
		s.wakePending.Store(true)

		return
	}

	s.synchronized.Store(true)
	s.task.submit(s.task.currentEpoch())
}

// Stop ends pacing and resets the media time to zero. A quantum that is
// already running may still finish, but it is never resubmitted.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		s.listener.Stopped()
	}
	s.started.Store(false)
	s.task.cancel()

	if ref := s.sink.Load(); ref != nil {
		ref.Stop()
	}

	s.timestamp.Store(0)
}

// Activate is Start.
func (s *Source) Activate() {
	s.Start()
}

// Deactivate is Stop.
func (s *Source) Deactivate() {
	s.Stop()
}

// Connect attaches sink, replacing the current one. The new sink is started
// right away when the source is running; the replaced one is stopped.
// Connecting the sink that is already attached changes nothing.
func (s *Source) Connect(sink Sink) {
	if sink == nil {
		s.Disconnect()

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.sink.Swap(&sinkRef{Sink: sink})
	if !s.started.Load() {
		return
	}
	if prev != nil {
		if prev.Sink == sink {
			return
		}
		prev.Stop()
	}
	sink.Start()
}

// Disconnect stops and detaches the current sink.
func (s *Source) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.sink.Swap(nil); prev != nil {
		prev.Stop()
	}
}

// IsConnected reports whether a sink is attached.
func (s *Source) IsConnected() bool {
	return s.sink.Load() != nil
}

// IsStarted reports whether the source is producing frames.
func (s *Source) IsStarted() bool {
	return s.started.Load()
}

// IsSynchronized reports whether the pacing task is scheduled or will be.
func (s *Source) IsSynchronized() bool {
	return s.synchronized.Load()
}

// SetInitialDelay sets the delay between Start and the first frame.
func (s *Source) SetInitialDelay(d time.Duration) {
	s.initialDelay.Store(int64(d))
}

// InitialDelay returns the delay between Start and the first frame.
func (s *Source) InitialDelay() time.Duration {
	return time.Duration(s.initialDelay.Load())
}

// SetDuration sets the total stream duration. The frame that brings the
// media time to d or beyond is the last one. Values <= 0 mean Unbounded.
func (s *Source) SetDuration(d time.Duration) {
	if d <= 0 {
		d = Unbounded
	}
	s.duration.Store(int64(d))
}

// Duration returns the total stream duration, or Unbounded.
func (s *Source) Duration() time.Duration {
	return time.Duration(s.duration.Load())
}

// MediaTime returns the start time of the next frame.
func (s *Source) MediaTime() time.Duration {
	return time.Duration(s.timestamp.Load())
}

// SetMediaTime sets the media time the next Start resumes from.
func (s *Source) SetMediaTime(offset time.Duration) {
	s.initialOffset.Store(int64(offset))
}

// PacketsTransmitted returns the number of frames delivered since Start.
func (s *Source) PacketsTransmitted() int64 {
	return s.txPackets.Load()
}

// BytesTransmitted returns the payload bytes delivered since Start.
func (s *Source) BytesTransmitted() int64 {
	return s.txBytes.Load()
}

// Reset zeroes the transmission counters.
func (s *Source) Reset() {
	s.txPackets.Store(0)
	s.txBytes.Store(0)
}

// Stats returns a snapshot of the source state.
func (s *Source) Stats() Stats {
	return Stats{
		Name:               s.name,
		Started:            s.started.Load(),
		Synchronized:       s.synchronized.Load(),
		MediaTime:          time.Duration(s.timestamp.Load()),
		SequenceNumber:     s.sn.Load(),
		PacketsTransmitted: s.txPackets.Load(),
		BytesTransmitted:   s.txBytes.Load(),
		SyncLosses:         s.syncLoss.Load(),
	}
}

// Report returns a one-line human readable summary of Stats.
func (s *Source) Report() string {
	return s.Stats().String()
}
