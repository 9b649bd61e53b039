// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sink

import (
	"io"
	"sync"

	"github.com/aalekseevx/framepacer/logging"
	"github.com/aalekseevx/framepacer/pacing"
)

var _ pacing.Sink = (*Dump)(nil)

// Dump writes one line per frame to an io.Writer.
type Dump struct {
	mu      sync.Mutex
	w       io.Writer
	running bool
	err     error
}

// NewDump returns a stopped sink writing to w.
func NewDump(w io.Writer) *Dump {
	return &Dump{w: w}
}

func (d *Dump) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.running = true
}

func (d *Dump) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.running = false
}

func (d *Dump) Accept(frame *pacing.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running || d.err != nil {
		return
	}
	_, d.err = io.WriteString(d.w, logging.FrameFormat(frame))
}

// Err returns the first write error; no lines are written after it.
func (d *Dump) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.err
}
