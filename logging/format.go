// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package logging

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"

	"github.com/aalekseevx/framepacer/pacing"
)

// RTPFormatter formats RTP packets for logging. Its RTPFormat method fits
// the packetdump interceptor formatter signature.
type RTPFormatter struct {
	mu    sync.Mutex
	seqnr unwrapper
	now   func() time.Time
}

// RTPFormat formats an RTP packet as a CSV line: arrival time in ms, payload
// type, SSRC, sequence number, RTP timestamp, marker, size and the unwrapped
// sequence number.
func (f *RTPFormatter) RTPFormat(pkt *rtp.Packet, _ interceptor.Attributes) string {
	f.mu.Lock()
	unwrappedSeqNr := f.seqnr.Unwrap(pkt.SequenceNumber)
	now := time.Now
	if f.now != nil {
		now = f.now
	}
	f.mu.Unlock()

	return fmt.Sprintf("%v, %v, %v, %v, %v, %v, %v, %v\n",
		now().UnixMilli(),
		pkt.PayloadType,
		pkt.SSRC,
		pkt.SequenceNumber,
		pkt.Timestamp,
		pkt.Marker,
		pkt.MarshalSize(),
		unwrappedSeqNr,
	)
}

// FrameFormat formats a stamped frame as a CSV line: sequence number, media
// timestamp in µs, duration in µs, size and the end-of-media flag.
func FrameFormat(frame *pacing.Frame) string {
	return fmt.Sprintf("%v, %v, %v, %v, %v\n",
		frame.SequenceNumber,
		frame.Timestamp.Microseconds(),
		frame.Duration.Microseconds(),
		frame.Len(),
		frame.EOM,
	)
}

// unwrapper extends 16 bit RTP sequence numbers into a monotonic count.
type unwrapper struct {
	init    bool
	last    uint16
	wrapped int64
}

func (u *unwrapper) Unwrap(seq uint16) int64 {
	if !u.init {
		u.init = true
		u.last = seq

		return int64(seq)
	}

	diff := int16(seq - u.last)
	switch {
	case diff > 0 && seq < u.last:
		u.wrapped += 1 << 16
	case diff < 0 && seq > u.last:
		u.wrapped -= 1 << 16
	}
	u.last = seq

	return u.wrapped + int64(seq)
}
