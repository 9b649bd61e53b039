// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package filesrc

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"

	"github.com/aalekseevx/framepacer/pacing"
)

var _ pacing.Generator = (*IVF)(nil)

type ivfFrame struct {
	data      []byte
	timestamp uint64
}

// IVF plays the frames of an IVF container. Frame durations come from the
// timestamp difference to the following frame in timebase units.
type IVF struct {
	mu     sync.Mutex
	reader *ivfreader.IVFReader
	header *ivfreader.IVFFileHeader
	closer io.Closer

	tick         time.Duration
	lastDuration time.Duration
	frames       lookahead[ivfFrame]
}

// NewIVF reads the IVF file header from r.
func NewIVF(r io.Reader) (*IVF, error) {
	return newIVF(r, nil)
}

// OpenIVF opens the IVF file at path. Close releases it.
func OpenIVF(path string) (*IVF, error) {
	return open(path, newIVF)
}

func newIVF(r io.Reader, closer io.Closer) (*IVF, error) {
	reader, header, err := ivfreader.NewWith(r)
	if err != nil {
		return nil, err
	}
	if header.TimebaseDenominator == 0 || header.TimebaseNumerator == 0 {
		return nil, fmt.Errorf("%w: %d/%d", errInvalidTimebase, header.TimebaseNumerator, header.TimebaseDenominator)
	}

	return &IVF{
		reader: reader,
		header: header,
		closer: closer,
		tick:   time.Second * time.Duration(header.TimebaseNumerator) / time.Duration(header.TimebaseDenominator),
	}, nil
}

// Header returns the IVF file header.
func (v *IVF) Header() *ivfreader.IVFFileHeader {
	return v.header
}

// NextFrame returns the next frame of the file, or nil once the file is
// exhausted. The last frame carries EOM.
func (v *IVF) NextFrame(time.Duration) *pacing.Frame {
	v.mu.Lock()
	defer v.mu.Unlock()

	cur, last, ok := v.frames.advance(v.read)
	if !ok {
		return nil
	}

	var d time.Duration
	if !last {
		d = time.Duration(v.frames.next.timestamp-cur.timestamp) * v.tick // nolint:gosec // G115
	}
	d = fallbackDuration(d, v.lastDuration, v.tick)
	v.lastDuration = d

	return &pacing.Frame{
		Data:     cur.data,
		Duration: d,
		EOM:      last,
	}
}

func (v *IVF) read() (ivfFrame, error) {
	data, header, err := v.reader.ParseNextFrame()
	if err != nil {
		return ivfFrame{}, err
	}

	return ivfFrame{data: data, timestamp: header.Timestamp}, nil
}

// Err returns the read error that ended the file early, if any.
func (v *IVF) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.frames.err
}

// Close closes the file opened by OpenIVF.
func (v *IVF) Close() error {
	if v.closer == nil {
		return nil
	}

	return v.closer.Close()
}
