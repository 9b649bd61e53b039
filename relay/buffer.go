// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package relay provides a generator for frames that arrive from outside,
// such as a network receiver. Frames are buffered until the pacing source
// pulls them, and every push wakes the source up.
package relay

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/aalekseevx/framepacer/pacing"
)

const defaultCapacity = 64

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("relay buffer closed")

// Waker is woken up whenever new frames become available.
type Waker interface {
	Wakeup()
}

var _ pacing.Generator = (*Buffer)(nil)

// Buffer is a bounded FIFO of frames. When it is full the oldest frame is
// dropped to make room.
type Buffer struct {
	mu       sync.Mutex
	frames   []*pacing.Frame
	head     int
	size     int
	closed   bool
	eomSent  bool
	waker    Waker
	dropped  atomic.Uint64
	received atomic.Uint64

	log logging.LeveledLogger
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithCapacity sets how many frames the buffer holds.
func WithCapacity(capacity int) Option {
	return func(b *Buffer) {
		if capacity > 0 {
			b.frames = make([]*pacing.Frame, capacity)
		}
	}
}

// WithLoggerFactory sets the factory the buffer logger is created from.
func WithLoggerFactory(factory logging.LoggerFactory) Option {
	return func(b *Buffer) {
		b.log = factory.NewLogger("relay")
	}
}

// NewBuffer returns an empty buffer.
func NewBuffer(opts ...Option) *Buffer {
	b := &Buffer{
		frames: make([]*pacing.Frame, defaultCapacity),
		log:    logging.NewDefaultLoggerFactory().NewLogger("relay"),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Attach sets the waker notified on every push, usually the pacing source
// reading from the buffer.
func (b *Buffer) Attach(w Waker) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.waker = w
}

// Push appends a copy of frame's payload and duration, dropping the oldest
// buffered frame when the buffer is full, then wakes the attached waker.
func (b *Buffer) Push(frame *pacing.Frame) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return ErrClosed
	}

	if b.size == len(b.frames) {
		b.frames[b.head] = nil
		b.head = (b.head + 1) % len(b.frames)
		b.size--
		if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
			b.log.Warnf("buffer full, dropped %d frames", n)
		}
	}
	b.frames[(b.head+b.size)%len(b.frames)] = &pacing.Frame{
		Data:     frame.Data,
		Duration: frame.Duration,
		EOM:      frame.EOM,
	}
	b.size++
	b.received.Add(1)
	waker := b.waker
	b.mu.Unlock()

	if waker != nil {
		waker.Wakeup()
	}

	return nil
}

// Close ends the stream: once the buffered frames are drained the next pull
// yields an empty end-of-media frame. The waker is woken so it can see it.
func (b *Buffer) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return
	}
	b.closed = true
	waker := b.waker
	b.mu.Unlock()

	if waker != nil {
		waker.Wakeup()
	}
}

// NextFrame pops the oldest buffered frame, or returns nil when the buffer is
// empty. It never blocks.
func (b *Buffer) NextFrame(time.Duration) *pacing.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		if b.closed && !b.eomSent {
			b.eomSent = true

			return &pacing.Frame{EOM: true}
		}

		return nil
	}

	frame := b.frames[b.head]
	b.frames[b.head] = nil
	b.head = (b.head + 1) % len(b.frames)
	b.size--

	return frame
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.size
}

// Dropped returns how many frames were discarded on overflow.
func (b *Buffer) Dropped() uint64 {
	return b.dropped.Load()
}

// Received returns how many frames were pushed.
func (b *Buffer) Received() uint64 {
	return b.received.Load()
}
