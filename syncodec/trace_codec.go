// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package syncodec

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aalekseevx/framepacer/pacing"
	"github.com/aalekseevx/framepacer/traces"
)

// QualityConfig defines the configuration for a single quality level.
type QualityConfig struct {
	Name      string `yaml:"name"`
	Bitrate   int    `yaml:"bitrate"`
	TraceFile string `yaml:"trace_file"`
}

// Quality describes one quality level of a TraceCodec.
type Quality struct {
	Name    string
	Bitrate int
	Active  bool
}

// TraceCodec replays pre-recorded frame traces, one per quality level, and
// can switch between them while running.
type TraceCodec struct {
	traces    map[string]*traces.Trace
	qualities []QualityConfig

	// Mutex to protect quality switching
	qualityMutex   sync.RWMutex
	currentQuality string
	frameIndex     int
	loop           bool
}

// TraceCodecOption is a function that configures a TraceCodec.
type TraceCodecOption func(*TraceCodec)

// WithoutLoop ends the stream after the last frame of the current trace
// instead of starting over.
func WithoutLoop() TraceCodecOption {
	return func(c *TraceCodec) {
		c.loop = false
	}
}

// WithQualities attaches bitrate information to the trace names.
func WithQualities(qualities []QualityConfig) TraceCodecOption {
	return func(c *TraceCodec) {
		c.qualities = qualities
	}
}

// NewTraceCodec creates a new TraceCodec playing traces, starting with
// initialQuality.
func NewTraceCodec(traces map[string]*traces.Trace, initialQuality string, opts ...TraceCodecOption) (*TraceCodec, error) {
	if len(traces) == 0 {
		return nil, errNoTraces
	}

	tc := &TraceCodec{
		traces: traces,
		loop:   true,
	}
	for _, opt := range opts {
		opt(tc)
	}

	if err := tc.SetQuality(initialQuality); err != nil {
		return nil, err
	}

	return tc, nil
}

// LoadTraceCodec reads the trace file of every quality from tracesDir and
// returns a codec over them.
func LoadTraceCodec(tracesDir string, qualities []QualityConfig, initialQuality string, opts ...TraceCodecOption) (*TraceCodec, error) {
	if len(qualities) == 0 {
		return nil, errNoQualities
	}

	traceFiles := make(map[string]*traces.Trace, len(qualities))
	for _, quality := range qualities {
		path := filepath.Join(tracesDir, quality.TraceFile)

		trace, err := traces.ReadTraceFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load trace file %s: %w", path, err)
		}

		traceFiles[quality.Name] = trace
	}

	return NewTraceCodec(traceFiles, initialQuality, append([]TraceCodecOption{WithQualities(qualities)}, opts...)...)
}

// GetCurrentQuality returns the current active quality.
func (c *TraceCodec) GetCurrentQuality() string {
	c.qualityMutex.RLock()
	defer c.qualityMutex.RUnlock()

	return c.currentQuality
}

// SetQuality switches to a different quality trace, restarting it from its
// first frame.
func (c *TraceCodec) SetQuality(quality string) error {
	c.qualityMutex.Lock()
	defer c.qualityMutex.Unlock()

	if _, exists := c.traces[quality]; !exists {
		return fmt.Errorf("%w: %q", errUnknownQuality, quality)
	}

	c.currentQuality = quality
	c.frameIndex = 0

	return nil
}

// GetAvailableQualities returns the names of all loaded traces.
func (c *TraceCodec) GetAvailableQualities() []string {
	names := make([]string, 0, len(c.traces))
	for name := range c.traces {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// GetQualities returns the configured qualities sorted by bitrate. Traces
// without a configuration report their measured average bitrate.
func (c *TraceCodec) GetQualities() []Quality {
	current := c.GetCurrentQuality()

	configured := make(map[string]int, len(c.qualities))
	for _, q := range c.qualities {
		configured[q.Name] = q.Bitrate
	}

	qualities := make([]Quality, 0, len(c.traces))
	for name, trace := range c.traces {
		bitrate, ok := configured[name]
		if !ok {
			bitrate = trace.Bitrate()
		}
		qualities = append(qualities, Quality{
			Name:    name,
			Bitrate: bitrate,
			Active:  name == current,
		})
	}
	sort.Slice(qualities, func(i, j int) bool {
		if qualities[i].Bitrate == qualities[j].Bitrate {
			return qualities[i].Name < qualities[j].Name
		}

		return qualities[i].Bitrate < qualities[j].Bitrate
	})

	return qualities
}

// GetTargetBitrate returns the bitrate of the active quality.
func (c *TraceCodec) GetTargetBitrate() int {
	for _, q := range c.GetQualities() {
		if q.Active {
			return q.Bitrate
		}
	}

	return 0
}

// SetTargetBitrate picks the best quality whose bitrate fits r, or the
// lowest one if none does.
func (c *TraceCodec) SetTargetBitrate(r int) {
	qualities := c.GetQualities()
	if len(qualities) == 0 {
		return
	}

	choice := qualities[0]
	for _, q := range qualities {
		if q.Bitrate <= r {
			choice = q
		}
	}
	if choice.Active {
		return
	}
	_ = c.SetQuality(choice.Name)
}

// NextFrame returns the next frame of the active trace. Without looping, the
// last frame carries EOM and the codec returns nil afterwards.
func (c *TraceCodec) NextFrame(time.Duration) *pacing.Frame {
	c.qualityMutex.Lock()
	defer c.qualityMutex.Unlock()

	trace := c.traces[c.currentQuality]
	if len(trace.Frames) == 0 || c.frameIndex >= len(trace.Frames) {
		return nil
	}

	frame := trace.Frames[c.frameIndex]
	out := &pacing.Frame{
		Data:     make([]byte, frame.Size),
		Duration: trace.Interval(c.frameIndex),
	}

	c.frameIndex++
	if c.frameIndex == len(trace.Frames) {
		if c.loop {
			c.frameIndex = 0
		} else {
			out.EOM = true
		}
	}

	return out
}
