// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sink

import (
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/aalekseevx/framepacer/pacing"
)

var _ pacing.Sink = (*Sample)(nil)

// Sample hands every accepted frame to a media.Sample consumer, such as
// webrtc.TrackLocalStaticSample.WriteSample.
type Sample struct {
	write   func(media.Sample) error
	running atomic.Bool
	errors  atomic.Uint64

	log logging.LeveledLogger
}

// NewSample returns a stopped sink calling write for each frame.
func NewSample(write func(media.Sample) error, opts ...Option) *Sample {
	return &Sample{
		write: write,
		log:   newConfig(opts).loggerFactory.NewLogger("sample_sink"),
	}
}

func (s *Sample) Start() { s.running.Store(true) }

func (s *Sample) Stop() { s.running.Store(false) }

func (s *Sample) Accept(frame *pacing.Frame) {
	if !s.running.Load() {
		return
	}
	if err := s.write(frame.Sample()); err != nil {
		s.errors.Add(1)
		s.log.Warnf("frame %d: %v", frame.SequenceNumber, err)
	}
}

// Errors returns how many samples failed to write.
func (s *Sample) Errors() uint64 {
	return s.errors.Load()
}

// MediaWriter adapts a media.Writer, such as the ivf and ogg file writers,
// to the writer an RTP sink packetizes into.
func MediaWriter(w media.Writer) interceptor.RTPWriter {
	return interceptor.RTPWriterFunc(
		func(header *rtp.Header, payload []byte, _ interceptor.Attributes) (int, error) {
			if err := w.WriteRTP(&rtp.Packet{Header: *header, Payload: payload}); err != nil {
				return 0, err
			}

			return header.MarshalSize() + len(payload), nil
		},
	)
}
