// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package filesrc provides generators that play media files: IVF video
// and Ogg/Opus audio. Each flags the last frame of the file as the end of
// media.
package filesrc

import (
	"errors"
	"io"
	"os"
	"time"
)

var errInvalidTimebase = errors.New("invalid timebase")

// open opens path and hands it to newReader, closing the file on failure.
func open[T any](path string, newReader func(io.Reader, io.Closer) (T, error)) (T, error) {
	var zero T

	//nolint:gosec
	file, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	r, err := newReader(file, file)
	if err != nil {
		_ = file.Close()

		return zero, err
	}

	return r, nil
}

// lookahead holds the frame that follows the one being returned, so the
// last frame of a file can be recognized before it is handed out.
type lookahead[T any] struct {
	next    T
	hasNext bool
	done    bool
	err     error
}

// advance returns the pending item and reads the one after it. last is true
// when no further item exists.
func (l *lookahead[T]) advance(read func() (T, error)) (cur T, last bool, ok bool) {
	if l.done {
		return cur, false, false
	}
	if !l.hasNext {
		next, err := read()
		if err != nil {
			l.fail(err)

			return cur, false, false
		}
		l.next, l.hasNext = next, true
	}

	cur = l.next
	next, err := read()
	if err != nil {
		l.fail(err)
		l.hasNext = false

		return cur, true, true
	}
	l.next = next

	return cur, false, true
}

func (l *lookahead[T]) fail(err error) {
	l.done = true
	if !errors.Is(err, io.EOF) {
		l.err = err
	}
}

// fallbackDuration returns d, or prev when d is not positive, or def when
// neither is.
func fallbackDuration(d, prev, def time.Duration) time.Duration {
	switch {
	case d > 0:
		return d
	case prev > 0:
		return prev
	default:
		return def
	}
}
