// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sink

import (
	"time"

	"github.com/pion/randutil"
	"github.com/pion/rtp"
)

// Use global random generator to properly seed by crypto grade random.
var globalMathRandomGenerator = randutil.NewMathRandomGenerator() // nolint:gochecknoglobals

const rtpHeaderSize = 12

// Packetizer splits frame payloads into RTP packets and keeps the RTP
// timestamp running across them.
type Packetizer struct {
	MTU         uint16
	PayloadType uint8
	SSRC        uint32
	Payloader   rtp.Payloader
	Sequencer   rtp.Sequencer
	Timestamp   uint32
	ClockRate   uint32

	// header extension id of abs-send-time, 0 when disabled
	absSendTime uint8
	timegen     func() time.Time
}

// PacketizerOption is a function that configures a RTP Packetizer.
type PacketizerOption func(*Packetizer)

// WithSSRC sets the SSRC for the Packetizer.
func WithSSRC(ssrc uint32) PacketizerOption {
	return func(p *Packetizer) {
		p.SSRC = ssrc
	}
}

// WithPayloadType sets the PayloadType for the Packetizer.
func WithPayloadType(pt uint8) PacketizerOption {
	return func(p *Packetizer) {
		p.PayloadType = pt
	}
}

// WithTimestamp sets the initial Timestamp for the Packetizer.
func WithTimestamp(timestamp uint32) PacketizerOption {
	return func(p *Packetizer) {
		p.Timestamp = timestamp
	}
}

// WithAbsSendTime stamps the last packet of every frame with the
// abs-send-time header extension under id.
func WithAbsSendTime(id uint8) PacketizerOption {
	return func(p *Packetizer) {
		p.absSendTime = id
	}
}

// NewPacketizer returns a new instance of a Packetizer with a random SSRC
// and initial timestamp.
func NewPacketizer(
	mtu uint16,
	payloader rtp.Payloader,
	sequencer rtp.Sequencer,
	clockRate uint32,
	options ...PacketizerOption,
) *Packetizer {
	p := &Packetizer{
		MTU:       mtu,
		SSRC:      globalMathRandomGenerator.Uint32(),
		Payloader: payloader,
		Sequencer: sequencer,
		Timestamp: globalMathRandomGenerator.Uint32(),
		ClockRate: clockRate,
		timegen:   time.Now,
	}

	for _, option := range options {
		option(p)
	}

	return p
}

// Samples converts a media duration into RTP clock ticks, rounded to the
// nearest tick.
func (p *Packetizer) Samples(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ticks := (int64(d)*int64(p.ClockRate) + int64(time.Second)/2) / int64(time.Second)

	return uint32(ticks) // nolint:gosec // G115
}

// Packetize packetizes payload into one or more RTP packets sharing the
// current timestamp, then advances the timestamp by samples.
func (p *Packetizer) Packetize(payload []byte, samples uint32) []*rtp.Packet {
	// Guard against an empty payload
	if len(payload) == 0 {
		return nil
	}

	payloads := p.Payloader.Payload(p.MTU-rtpHeaderSize, payload)
	packets := make([]*rtp.Packet, len(payloads))

	for i, pp := range payloads {
		packets[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    p.PayloadType,
				SequenceNumber: p.Sequencer.NextSequenceNumber(),
				Timestamp:      p.Timestamp,
				SSRC:           p.SSRC,
			},
			Payload: pp,
		}
	}
	p.Timestamp += samples

	if len(packets) != 0 && p.absSendTime != 0 {
		sendTime := rtp.NewAbsSendTimeExtension(p.timegen())
		b, err := sendTime.Marshal()
		if err != nil {
			return nil // never happens
		}
		if err = packets[len(packets)-1].SetExtension(p.absSendTime, b); err != nil {
			return nil // never happens
		}
	}

	return packets
}

// SkipSamples causes a gap in sample count between Packetize requests so the
// RTP payloads produced have a gap in timestamps.
func (p *Packetizer) SkipSamples(skippedSamples uint32) {
	p.Timestamp += skippedSamples
}
