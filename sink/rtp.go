// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package sink provides the consumers paced frames are delivered to: RTP
// packetizing writers, WebRTC tracks, media sample writers, text dumps and
// fan-out.
package sink

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/aalekseevx/framepacer/pacing"
)

const outboundMTU = 1200

var errNoPayloader = errors.New("no payloader for codec")

var _ pacing.Sink = (*RTP)(nil)

// RTPStats counts what an RTP sink did with the frames it was handed.
type RTPStats struct {
	Packets     uint64
	Bytes       uint64
	WriteErrors uint64
	// frames accepted while the sink was stopped
	Dropped uint64
}

// RTP packetizes frames and writes the packets to an interceptor.RTPWriter.
// Gaps in media time between consecutive frames become gaps in RTP time.
type RTP struct {
	mu         sync.Mutex
	packetizer *Packetizer
	writer     interceptor.RTPWriter
	running    bool
	next       time.Duration
	hasNext    bool

	packets     atomic.Uint64
	bytes       atomic.Uint64
	writeErrors atomic.Uint64
	dropped     atomic.Uint64

	log logging.LeveledLogger
}

// Option configures the sinks of this package.
type Option func(*config)

type config struct {
	mtu           uint16
	packetizer    []PacketizerOption
	loggerFactory logging.LoggerFactory
}

// WithMTU sets the largest RTP packet the sink writes.
func WithMTU(mtu uint16) Option {
	return func(c *config) {
		c.mtu = mtu
	}
}

// WithPacketizerOptions passes options through to the packetizer.
func WithPacketizerOptions(opts ...PacketizerOption) Option {
	return func(c *config) {
		c.packetizer = append(c.packetizer, opts...)
	}
}

// WithLoggerFactory sets the factory sink loggers are created from.
func WithLoggerFactory(factory logging.LoggerFactory) Option {
	return func(c *config) {
		c.loggerFactory = factory
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		mtu:           outboundMTU,
		loggerFactory: logging.NewDefaultLoggerFactory(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewRTP returns a stopped RTP sink writing to writer.
func NewRTP(writer interceptor.RTPWriter, payloader rtp.Payloader, clockRate uint32, opts ...Option) *RTP {
	c := newConfig(opts)

	return &RTP{
		packetizer: NewPacketizer(c.mtu, payloader, rtp.NewRandomSequencer(), clockRate, c.packetizer...),
		writer:     writer,
		log:        c.loggerFactory.NewLogger("rtp_sink"),
	}
}

// NewRTPForCodec returns a stopped RTP sink using the payloader and clock
// rate of codec.
func NewRTPForCodec(writer interceptor.RTPWriter, codec webrtc.RTPCodecCapability, opts ...Option) (*RTP, error) {
	payloader, err := payloaderForCodec(codec)
	if err != nil {
		return nil, err
	}

	return NewRTP(writer, payloader, codec.ClockRate, opts...), nil
}

// Start lets frames through.
func (r *RTP) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = true
	r.hasNext = false
}

// Stop drops every frame accepted until the next Start.
func (r *RTP) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
}

// Accept packetizes and writes frame. Write failures are logged and counted.
func (r *RTP) Accept(frame *pacing.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		r.dropped.Add(1)

		return
	}

	if r.hasNext && frame.Timestamp > r.next {
		r.packetizer.SkipSamples(r.packetizer.Samples(frame.Timestamp - r.next))
	}
	r.next = frame.Timestamp + frame.Duration
	r.hasNext = true

	if err := r.write(frame.Data, r.packetizer.Samples(frame.Duration)); err != nil {
		r.writeErrors.Add(1)
		r.log.Warnf("frame %d: %v", frame.SequenceNumber, err)
	}
}

// WriteSample writes a media sample outside the paced stream, skipping
// sequence numbers and RTP time for the packets the producer dropped.
func (r *RTP) WriteSample(sample media.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := uint16(0); i < sample.PrevDroppedPackets; i++ {
		r.packetizer.Sequencer.NextSequenceNumber()
	}

	samples := r.packetizer.Samples(sample.Duration)
	if sample.PrevDroppedPackets > 0 {
		r.packetizer.SkipSamples(samples * uint32(sample.PrevDroppedPackets))
	}

	return r.write(sample.Data, samples)
}

func (r *RTP) write(data []byte, samples uint32) error {
	packets := r.packetizer.Packetize(data, samples)

	writeErrs := []error{}
	for _, p := range packets {
		if _, err := r.writer.Write(&p.Header, p.Payload, interceptor.Attributes{}); err != nil {
			writeErrs = append(writeErrs, err)

			continue
		}
		r.packets.Add(1)
		r.bytes.Add(uint64(p.MarshalSize())) // nolint:gosec // G115
	}

	return errors.Join(writeErrs...)
}

// Stats returns the counters of the sink.
func (r *RTP) Stats() RTPStats {
	return RTPStats{
		Packets:     r.packets.Load(),
		Bytes:       r.bytes.Load(),
		WriteErrors: r.writeErrors.Load(),
		Dropped:     r.dropped.Load(),
	}
}

func payloaderForCodec(codec webrtc.RTPCodecCapability) (rtp.Payloader, error) {
	switch strings.ToLower(codec.MimeType) {
	case strings.ToLower(webrtc.MimeTypeH264):
		return &codecs.H264Payloader{}, nil
	case strings.ToLower(webrtc.MimeTypeH265):
		return &codecs.H265Payloader{}, nil
	case strings.ToLower(webrtc.MimeTypeOpus):
		return &codecs.OpusPayloader{}, nil
	case strings.ToLower(webrtc.MimeTypeVP8):
		return &codecs.VP8Payloader{
			EnablePictureID: true,
		}, nil
	case strings.ToLower(webrtc.MimeTypeVP9):
		return &codecs.VP9Payloader{}, nil
	case strings.ToLower(webrtc.MimeTypeAV1):
		return &codecs.AV1Payloader{}, nil
	case strings.ToLower(webrtc.MimeTypeG722):
		return &codecs.G722Payloader{}, nil
	case strings.ToLower(webrtc.MimeTypePCMU), strings.ToLower(webrtc.MimeTypePCMA):
		return &codecs.G711Payloader{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", errNoPayloader, codec.MimeType)
	}
}
