// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package pacing

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
)

// Frame is one unit of media payload. Generators fill Data, Duration and
// optionally EOM; the source stamps Timestamp and SequenceNumber before the
// frame is handed to the sink. A stamped frame must not be modified.
type Frame struct {
	Data     []byte
	Duration time.Duration

	// Timestamp is the media time at which the frame starts.
	Timestamp time.Duration
	// SequenceNumber counts frames since the source was started.
	SequenceNumber int64
	// EOM marks the last frame of the stream.
	EOM bool
}

// Len returns the payload length in bytes.
func (f *Frame) Len() int {
	return len(f.Data)
}

// Sample converts the frame into a media.Sample.
func (f *Frame) Sample() media.Sample {
	return media.Sample{
		Data:     f.Data,
		Duration: f.Duration,
	}
}

func (f *Frame) String() string {
	return fmt.Sprintf("FRAME: \n\tSEQ: %v\n\tTIMESTAMP: %v\n\tDURATION: %v\n\tSIZE: %v\n\tEOM: %v\n",
		f.SequenceNumber, f.Timestamp, f.Duration, len(f.Data), f.EOM)
}
