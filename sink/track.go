// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sink

import (
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/aalekseevx/framepacer/pacing"
)

var (
	_ pacing.Sink       = (*Track)(nil)
	_ webrtc.TrackLocal = (*Track)(nil)
)

// Track is a webrtc.TrackLocal fed by a pacing source. Frames accepted
// before the track is bound to a peer connection are discarded.
type Track struct {
	mu       sync.RWMutex
	rtpTrack *webrtc.TrackLocalStaticRTP
	options  []Option
	rtp      *RTP
	running  bool
}

// NewTrack returns a Track with a pre-set codec.
func NewTrack(c webrtc.RTPCodecCapability, id, streamID string, opts ...Option) (*Track, error) {
	rtpTrack, err := webrtc.NewTrackLocalStaticRTP(c, id, streamID)
	if err != nil {
		return nil, err
	}

	return &Track{
		rtpTrack: rtpTrack,
		options:  opts,
	}, nil
}

// ID is the unique identifier for this Track. This should be unique for the
// stream, but doesn't have to globally unique. A common example would be 'audio' or 'video'
// and StreamID would be 'desktop' or 'webcam'.
func (t *Track) ID() string { return t.rtpTrack.ID() }

// StreamID is the group this track belongs too. This must be unique.
func (t *Track) StreamID() string { return t.rtpTrack.StreamID() }

// RID is the RTP stream identifier.
func (t *Track) RID() string { return t.rtpTrack.RID() }

// Kind controls if this TrackLocal is audio or video.
func (t *Track) Kind() webrtc.RTPCodecType { return t.rtpTrack.Kind() }

// Codec gets the Codec of the track.
func (t *Track) Codec() webrtc.RTPCodecCapability {
	return t.rtpTrack.Codec()
}

// Bind is called by the PeerConnection after negotiation is complete.
// It sets up the RTP sink for the negotiated codec; later bindings share it.
func (t *Track) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	codec, err := t.rtpTrack.Bind(ctx)
	if err != nil {
		return codec, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rtp != nil {
		return codec, nil
	}

	r, err := NewRTPForCodec(trackWriter(t.rtpTrack), codec.RTPCodecCapability, t.options...)
	if err != nil {
		return codec, err
	}
	if t.running {
		r.Start()
	}
	t.rtp = r

	return codec, nil
}

// Unbind implements the teardown logic when the track is no longer needed.
func (t *Track) Unbind(ctx webrtc.TrackLocalContext) error {
	return t.rtpTrack.Unbind(ctx)
}

// Start lets paced frames through to the bound peer connections.
func (t *Track) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = true
	if t.rtp != nil {
		t.rtp.Start()
	}
}

// Stop discards paced frames until the next Start.
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = false
	if t.rtp != nil {
		t.rtp.Stop()
	}
}

// Accept writes frame to every bound peer connection.
func (t *Track) Accept(frame *pacing.Frame) {
	if r := t.bound(); r != nil {
		r.Accept(frame)
	}
}

// WriteSample writes a Sample to the track outside the paced stream.
// If one PeerConnection fails the packets will still be sent to
// all PeerConnections. The error message will contain the ID of the failed
// PeerConnections so you can remove them.
func (t *Track) WriteSample(sample media.Sample) error {
	if r := t.bound(); r != nil {
		return r.WriteSample(sample)
	}

	return nil
}

// Stats returns the counters of the underlying RTP sink.
func (t *Track) Stats() RTPStats {
	if r := t.bound(); r != nil {
		return r.Stats()
	}

	return RTPStats{}
}

func (t *Track) bound() *RTP {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.rtp
}

func trackWriter(track *webrtc.TrackLocalStaticRTP) interceptor.RTPWriter {
	return interceptor.RTPWriterFunc(
		func(header *rtp.Header, payload []byte, _ interceptor.Attributes) (int, error) {
			if err := track.WriteRTP(&rtp.Packet{Header: *header, Payload: payload}); err != nil {
				return 0, err
			}

			return header.MarshalSize() + len(payload), nil
		},
	)
}
