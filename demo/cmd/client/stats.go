package main

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/webrtc/v4"
)

// StreamStats is one report line for a received track.
type StreamStats struct {
	Timestamp                   int64   `json:"timestamp"`
	Track                       string  `json:"track"`
	SSRC                        uint32  `json:"ssrc"`
	PacketsReceived             uint64  `json:"packets_received"`
	PacketsLost                 int64   `json:"packets_lost"`
	Jitter                      float64 `json:"jitter"`
	LastPacketReceivedTimestamp int64   `json:"last_packet_received_timestamp"`
	HeaderBytesReceived         uint64  `json:"header_bytes_received"`
	BytesReceived               uint64  `json:"bytes_received"`
	FIRCount                    uint32  `json:"fir_count"`
	PLICount                    uint32  `json:"pli_count"`
	NACKCount                   uint32  `json:"nack_count"`
	// Gap is the longest time between two packets since the last report; it
	// shows how evenly the sender paces.
	Gap time.Duration `json:"gap"`
}

func newStreamStats(now time.Time, track string, ssrc webrtc.SSRC, raw *stats.Stats, gap time.Duration) StreamStats {
	return StreamStats{
		Timestamp:                   now.UnixNano(),
		Track:                       track,
		SSRC:                        uint32(ssrc),
		PacketsReceived:             raw.InboundRTPStreamStats.PacketsReceived,
		PacketsLost:                 raw.InboundRTPStreamStats.PacketsLost,
		Jitter:                      raw.InboundRTPStreamStats.Jitter,
		LastPacketReceivedTimestamp: raw.LastPacketReceivedTimestamp.UnixNano(),
		HeaderBytesReceived:         raw.HeaderBytesReceived,
		BytesReceived:               raw.BytesReceived,
		FIRCount:                    raw.InboundRTPStreamStats.FIRCount,
		PLICount:                    raw.InboundRTPStreamStats.PLICount,
		NACKCount:                   raw.InboundRTPStreamStats.NACKCount,
		Gap:                         gap,
	}
}

// trackState follows the packet arrival of one remote track.
type trackState struct {
	name   string
	last   time.Time
	maxGap time.Duration
}

// reporter collects the open tracks and writes a JSON line per track on
// every report.
type reporter struct {
	mu      sync.Mutex
	tracks  map[webrtc.SSRC]*trackState
	getter  stats.Getter
	encoder *json.Encoder
}

func newReporter(w io.Writer) *reporter {
	return &reporter{
		tracks:  make(map[webrtc.SSRC]*trackState),
		encoder: json.NewEncoder(w),
	}
}

func (r *reporter) setGetter(getter stats.Getter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.getter = getter
}

func (r *reporter) open(ssrc webrtc.SSRC, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracks[ssrc] = &trackState{name: name}
}

func (r *reporter) close(ssrc webrtc.SSRC) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tracks, ssrc)
}

func (r *reporter) packet(ssrc webrtc.SSRC, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tracks[ssrc]
	if !ok {
		return
	}
	if !t.last.IsZero() {
		t.maxGap = max(t.maxGap, now.Sub(t.last))
	}
	t.last = now
}

// report writes one line per open track and returns how many were written.
func (r *reporter) report(now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getter == nil {
		return 0, nil
	}

	written := 0
	for ssrc, t := range r.tracks {
		raw := r.getter.Get(uint32(ssrc))
		if raw == nil {
			continue
		}
		if err := r.encoder.Encode(newStreamStats(now, t.name, ssrc, raw, t.maxGap)); err != nil {
			return written, err
		}
		t.maxGap = 0
		written++
	}

	return written, nil
}
