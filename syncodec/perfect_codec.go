// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package syncodec

import (
	"sync/atomic"
	"time"

	"github.com/aalekseevx/framepacer/pacing"
)

var _ Codec = (*PerfectCodec)(nil)

// PerfectCodec produces frames at a constant rate with sizes exactly
// matching the target bitrate.
type PerfectCodec struct {
	targetBitrateBps atomic.Int64
	fps              int
}

// NewPerfectCodec creates a new PerfectCodec with the specified target
// bitrate and frame rate.
func NewPerfectCodec(targetBitrateBps, fps int) *PerfectCodec {
	if fps <= 0 {
		fps = defaultFPS
	}
	c := &PerfectCodec{fps: fps}
	c.targetBitrateBps.Store(int64(targetBitrateBps))

	return c
}

// GetTargetBitrate returns the current target bitrate in bit per second.
func (c *PerfectCodec) GetTargetBitrate() int {
	return int(c.targetBitrateBps.Load())
}

// SetTargetBitrate sets the target bitrate to r bits per second.
func (c *PerfectCodec) SetTargetBitrate(r int) {
	c.targetBitrateBps.Store(int64(r))
}

// NextFrame returns the next frame. The codec never runs dry.
func (c *PerfectCodec) NextFrame(time.Duration) *pacing.Frame {
	return &pacing.Frame{
		Data:     make([]byte, frameSize(c.GetTargetBitrate(), c.fps)),
		Duration: frameInterval(c.fps),
	}
}
