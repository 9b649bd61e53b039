// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package syncodec

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aalekseevx/framepacer/pacing"
)

// Constants for the statistical codec.
const (
	defaultTargetBitrateBps = 1_000_000 // 1 Mbps
	defaultFPS              = 30
	defaultTau              = 200 * time.Millisecond
	defaultBurstFrameCount  = 8
	defaultBurstFrameSize   = 13_500 // 13.5 KB

	// Scaling parameter of zero-mean laplacian distribution describing
	// deviations in normalized frame interval.
	defaultScaleT = 0.15

	// Scaling parameter of zero-mean laplacian distribution describing
	// deviations in normalized frame size.
	defaultScaleB = 0.15

	defaultRMin = 150_000     // 150 kbps
	defaultRMax = 150_000_000 // 150 Mbps

	// shortest frame the codec emits; a zero duration would stall pacing
	minFrameDuration = time.Millisecond
)

// noiser defines an interface for adding noise to values.
type noiser interface {
	noise() float64
}

// laplaceNoise implements the noiser interface using a Laplace distribution.
type laplaceNoise struct {
	rnd   *rand.Rand
	scale float64
}

// noise returns a random value from a Laplace distribution.
func (l laplaceNoise) noise() float64 {
	if l.scale == 0 {
		return 0
	}
	e1 := -l.scale * math.Log(1-l.rnd.Float64())
	e2 := -l.scale * math.Log(1-l.rnd.Float64())

	return e1 - e2
}

var _ Codec = (*StatisticalCodec)(nil)

// StatisticalCodec produces frames with sizes and timings that follow
// statistical distributions to simulate real-world encoders. After a target
// bitrate change it emits a burst of frames the way an encoder produces a
// key frame followed by a transient period.
type StatisticalCodec struct {
	mu sync.Mutex

	// requested target bitrate
	targetBitrateBps int

	// Frames per second
	fps int

	// encoder reaction latency, in media time
	tau time.Duration

	// burst duration of transient period in frames
	burstFrameCount int

	// burst frame size during transient period
	burstFrameSize int

	// min rate supported by video encoder
	rMin int

	// max rate supported by video encoder
	rMax int

	// scaling parameter of zero-mean laplacian distribution describing
	// deviations in normalized frame size
	scaleB float64

	// scaling parameter of zero-mean laplacian distribution describing
	// deviations in normalized frame interval
	scaleT float64

	seed int64

	pendingBitrate          int
	hasPendingBitrate       bool
	lastTargetBitrateUpdate time.Duration

	remainingBurstFrames int

	frameSizeNoiser     noiser
	frameDurationNoiser noiser
}

// StatisticalCodecOption is a function that configures a StatisticalCodec.
type StatisticalCodecOption func(*StatisticalCodec) error

// WithInitialTargetBitrate sets the initial target bitrate for the codec.
func WithInitialTargetBitrate(targetBitrateBps int) StatisticalCodecOption {
	return func(sc *StatisticalCodec) error {
		sc.targetBitrateBps = targetBitrateBps

		return nil
	}
}

// WithFramesPerSecond sets the frames per second for the codec.
func WithFramesPerSecond(fps int) StatisticalCodecOption {
	return func(sc *StatisticalCodec) error {
		if fps <= 0 {
			return errInvalidFPS
		}
		sc.fps = fps

		return nil
	}
}

// WithScaleB sets the scaling parameter for frame size noise.
func WithScaleB(scale float64) StatisticalCodecOption {
	return func(sc *StatisticalCodec) error {
		sc.scaleB = scale

		return nil
	}
}

// WithScaleT sets the scaling parameter for frame timing noise.
func WithScaleT(scale float64) StatisticalCodecOption {
	return func(sc *StatisticalCodec) error {
		sc.scaleT = scale

		return nil
	}
}

// WithReactionLatency sets how much media time must pass between two
// applied bitrate changes.
func WithReactionLatency(tau time.Duration) StatisticalCodecOption {
	return func(sc *StatisticalCodec) error {
		sc.tau = tau

		return nil
	}
}

// WithSeed makes the noise sequence reproducible.
func WithSeed(seed int64) StatisticalCodecOption {
	return func(sc *StatisticalCodec) error {
		sc.seed = seed

		return nil
	}
}

// NewStatisticalEncoder creates a new StatisticalCodec with the given options.
func NewStatisticalEncoder(opts ...StatisticalCodecOption) (*StatisticalCodec, error) {
	sc := &StatisticalCodec{
		targetBitrateBps:        defaultTargetBitrateBps,
		fps:                     defaultFPS,
		tau:                     defaultTau,
		burstFrameCount:         defaultBurstFrameCount,
		burstFrameSize:          defaultBurstFrameSize,
		rMin:                    defaultRMin,
		rMax:                    defaultRMax,
		scaleB:                  defaultScaleB,
		scaleT:                  defaultScaleT,
		seed:                    time.Now().UnixNano(),
		lastTargetBitrateUpdate: -defaultTau,
	}

	for _, opt := range opts {
		if err := opt(sc); err != nil {
			return nil, err
		}
	}

	sc.lastTargetBitrateUpdate = -sc.tau
	sc.frameSizeNoiser = laplaceNoise{
		//nolint:gosec
		rnd:   rand.New(rand.NewSource(sc.seed)),
		scale: sc.scaleB,
	}
	sc.frameDurationNoiser = laplaceNoise{
		//nolint:gosec
		rnd:   rand.New(rand.NewSource(sc.seed + 1)),
		scale: sc.scaleT,
	}
	sc.targetBitrateBps = sc.clamp(sc.targetBitrateBps)

	return sc, nil
}

// GetTargetBitrate returns the current target bitrate in bit per second.
func (c *StatisticalCodec) GetTargetBitrate() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.targetBitrateBps
}

// SetTargetBitrate requests a new target bitrate of r bits per second,
// clamped to the range the encoder supports. The change is applied with the
// next frame, unless the previous change is less than the reaction latency
// old, in which case it waits until it is.
func (c *StatisticalCodec) SetTargetBitrate(r int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pendingBitrate = c.clamp(r)
	c.hasPendingBitrate = true
}

func (c *StatisticalCodec) clamp(r int) int {
	return min(max(r, c.rMin), c.rMax)
}

// NextFrame returns the next faked video frame starting at timestamp.
func (c *StatisticalCodec) NextFrame(timestamp time.Duration) *pacing.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasPendingBitrate && timestamp-c.lastTargetBitrateUpdate >= c.tau {
		c.targetBitrateBps = c.pendingBitrate
		c.hasPendingBitrate = false
		c.lastTargetBitrateUpdate = timestamp
		c.remainingBurstFrames = c.burstFrameCount
	}

	return c.nextFrame()
}

func (c *StatisticalCodec) nextFrame() *pacing.Frame {
	duration := frameInterval(c.fps)
	bytesPerFrame := frameSize(c.targetBitrateBps, c.fps)

	if c.remainingBurstFrames == c.burstFrameCount && c.remainingBurstFrames > 0 {
		c.remainingBurstFrames--

		return &pacing.Frame{
			Data:     make([]byte, c.burstFrameSize),
			Duration: duration,
		}
	}

	if c.remainingBurstFrames > 0 {
		c.remainingBurstFrames--
		// the rest of the transient period shares what the key frame left over
		budget := bytesPerFrame*c.burstFrameCount - c.burstFrameSize
		size := max(budget/(c.burstFrameCount-1), 1)

		return &pacing.Frame{
			Data:     make([]byte, size),
			Duration: duration,
		}
	}

	noisedBytesPerFrame := math.Max(1, float64(bytesPerFrame)*(1-c.frameSizeNoiser.noise()))
	noisedDuration := math.Max(float64(minFrameDuration), float64(duration)*(1-c.frameDurationNoiser.noise()))

	return &pacing.Frame{
		Data:     make([]byte, int(noisedBytesPerFrame)),
		Duration: time.Duration(noisedDuration),
	}
}
