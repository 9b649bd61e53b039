// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package filesrc

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/aalekseevx/framepacer/pacing"
)

const (
	// Opus granule positions always count 48 kHz samples.
	opusGranuleRate    = 48000
	defaultOpusPageDur = 20 * time.Millisecond
)

var opusTagsSignature = []byte("OpusTags")

var _ pacing.Generator = (*Ogg)(nil)

type oggPage struct {
	data     []byte
	granule  uint64
	previous uint64
}

// Ogg plays the pages of an Ogg/Opus file, one frame per page. Frame
// durations come from the Opus TOC byte of the page, or from the granule
// position difference to the previous page when the TOC is unusable.
type Ogg struct {
	mu     sync.Mutex
	reader *oggreader.OggReader
	header *oggreader.OggHeader
	closer io.Closer

	lastGranule  uint64
	lastDuration time.Duration
	pages        lookahead[oggPage]
}

// NewOgg reads the Opus identification header from r.
func NewOgg(r io.Reader) (*Ogg, error) {
	return newOgg(r, nil)
}

// OpenOgg opens the Ogg/Opus file at path. Close releases it.
func OpenOgg(path string) (*Ogg, error) {
	return open(path, newOgg)
}

func newOgg(r io.Reader, closer io.Closer) (*Ogg, error) {
	reader, header, err := oggreader.NewWith(r)
	if err != nil {
		return nil, err
	}

	return &Ogg{
		reader: reader,
		header: header,
		closer: closer,
	}, nil
}

// Header returns the Opus identification header.
func (o *Ogg) Header() *oggreader.OggHeader {
	return o.header
}

// NextFrame returns the next page of the file, or nil once the file is
// exhausted. The last page carries EOM.
func (o *Ogg) NextFrame(time.Duration) *pacing.Frame {
	o.mu.Lock()
	defer o.mu.Unlock()

	cur, last, ok := o.pages.advance(o.read)
	if !ok {
		return nil
	}

	d := opusDuration(cur.data)
	if d == 0 && cur.granule > cur.previous {
		d = time.Duration(cur.granule-cur.previous) * time.Second / opusGranuleRate // nolint:gosec // G115
	}
	d = fallbackDuration(d, o.lastDuration, defaultOpusPageDur)
	o.lastDuration = d

	return &pacing.Frame{
		Data:     cur.data,
		Duration: d,
		EOM:      last,
	}
}

func (o *Ogg) read() (oggPage, error) {
	for {
		data, header, err := o.reader.ParseNextPage()
		if err != nil {
			return oggPage{}, err
		}
		if bytes.HasPrefix(data, opusTagsSignature) {
			continue
		}

		page := oggPage{data: data, granule: header.GranulePosition, previous: o.lastGranule}
		o.lastGranule = header.GranulePosition

		return page, nil
	}
}

// Err returns the read error that ended the file early, if any.
func (o *Ogg) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.pages.err
}

// Close closes the file opened by OpenOgg.
func (o *Ogg) Close() error {
	if o.closer == nil {
		return nil
	}

	return o.closer.Close()
}

// opusFrameSizes maps the TOC configuration number to the frame duration.
var opusFrameSizes = [32]time.Duration{ // nolint:gochecknoglobals
	10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond, // SILK NB
	10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond, // SILK MB
	10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond, // SILK WB
	10 * time.Millisecond, 20 * time.Millisecond, // Hybrid SWB
	10 * time.Millisecond, 20 * time.Millisecond, // Hybrid FB
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond, // CELT NB
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond, // CELT WB
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond, // CELT SWB
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond, // CELT FB
}

// opusDuration returns the duration of the Opus packet in data, or 0 when
// the packet is too short to tell.
func opusDuration(data []byte) time.Duration {
	if len(data) == 0 {
		return 0
	}
	toc := data[0]

	frames := 1
	switch toc & 0x03 {
	case 1, 2:
		frames = 2
	case 3:
		if len(data) < 2 {
			return 0
		}
		frames = int(data[1] & 0x3f)
	}

	return time.Duration(frames) * opusFrameSizes[toc>>3]
}
