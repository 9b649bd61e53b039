// Package sources turns the source entries of the demo configs into pacing
// generators and the codec their frames are carried in.
package sources

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/aalekseevx/framepacer/filesrc"
	"github.com/aalekseevx/framepacer/pacing"
	"github.com/aalekseevx/framepacer/syncodec"
)

// Source kinds.
const (
	KindPerfect     = "perfect"
	KindStatistical = "statistical"
	KindTrace       = "trace"
	KindIVF         = "ivf"
	KindOgg         = "ogg"
)

const (
	defaultFPS     = 30
	defaultBitrate = 1_000_000
	videoClockRate = 90000
	opusClockRate  = 48000
)

var (
	errUnknownKind   = errors.New("unknown source kind")
	errNoName        = errors.New("source has no name")
	errNoPath        = errors.New("source has no path")
	errUnknownFourCC = errors.New("unable to handle FourCC")
)

// Config describes one paced source.
type Config struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	// Path is the media file, or the trace directory for trace sources.
	Path     string `yaml:"path"`
	MimeType string `yaml:"mime_type"`

	FPS     int   `yaml:"fps"`
	Bitrate int   `yaml:"bitrate"`
	Seed    int64 `yaml:"seed"`

	Qualities      []syncodec.QualityConfig `yaml:"qualities"`
	InitialQuality string                   `yaml:"initial_quality"`
	NoLoop         bool                     `yaml:"no_loop"`

	Duration     time.Duration `yaml:"duration"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	// Queue pins the source to a scheduler queue; unset sources are spread
	// round-robin.
	Queue *int `yaml:"queue"`
}

// Validate checks the fields every kind needs.
func (c Config) Validate() error {
	if c.Name == "" {
		return errNoName
	}
	switch c.Kind {
	case KindPerfect, KindStatistical:
		return nil
	case KindTrace, KindIVF, KindOgg:
		if c.Path == "" {
			return fmt.Errorf("%s: %w", c.Name, errNoPath)
		}

		return nil
	default:
		return fmt.Errorf("%s: %w: %q", c.Name, errUnknownKind, c.Kind)
	}
}

// Options returns the pacing options the entry asks for.
func (c Config) Options() []pacing.Option {
	opts := []pacing.Option{pacing.WithInitialDelay(c.InitialDelay)}
	if c.Duration > 0 {
		opts = append(opts, pacing.WithDuration(c.Duration))
	}

	return opts
}

// Media is an opened generator along with its codec.
type Media struct {
	Generator pacing.Generator
	Codec     webrtc.RTPCodecCapability
	closer    io.Closer
}

// Close releases the file behind a file generator.
func (m *Media) Close() error {
	if m.closer == nil {
		return nil
	}

	return m.closer.Close()
}

// Open creates a fresh generator for the entry.
func (c Config) Open() (*Media, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	fps := c.FPS
	if fps <= 0 {
		fps = defaultFPS
	}
	bitrate := c.Bitrate
	if bitrate <= 0 {
		bitrate = defaultBitrate
	}
	video := webrtc.RTPCodecCapability{MimeType: c.mimeType(webrtc.MimeTypeVP8), ClockRate: videoClockRate}

	switch c.Kind {
	case KindPerfect:
		return &Media{Generator: syncodec.NewPerfectCodec(bitrate, fps), Codec: video}, nil

	case KindStatistical:
		opts := []syncodec.StatisticalCodecOption{
			syncodec.WithInitialTargetBitrate(bitrate),
			syncodec.WithFramesPerSecond(fps),
		}
		if c.Seed != 0 {
			opts = append(opts, syncodec.WithSeed(c.Seed))
		}
		codec, err := syncodec.NewStatisticalEncoder(opts...)
		if err != nil {
			return nil, fmt.Errorf("%s: new statistical encoder: %w", c.Name, err)
		}

		return &Media{Generator: codec, Codec: video}, nil

	case KindTrace:
		var opts []syncodec.TraceCodecOption
		if c.NoLoop {
			opts = append(opts, syncodec.WithoutLoop())
		}
		codec, err := syncodec.LoadTraceCodec(filepath.Clean(c.Path), c.Qualities, c.InitialQuality, opts...)
		if err != nil {
			return nil, fmt.Errorf("%s: load traces: %w", c.Name, err)
		}

		return &Media{Generator: codec, Codec: video}, nil

	case KindIVF:
		ivf, err := filesrc.OpenIVF(c.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: open ivf: %w", c.Name, err)
		}
		mime, err := mimeTypeForFourCC(ivf.Header().FourCC)
		if err != nil {
			_ = ivf.Close()

			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}

		return &Media{
			Generator: ivf,
			Codec:     webrtc.RTPCodecCapability{MimeType: mime, ClockRate: videoClockRate},
			closer:    ivf,
		}, nil

	case KindOgg:
		ogg, err := filesrc.OpenOgg(c.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: open ogg: %w", c.Name, err)
		}

		return &Media{
			Generator: ogg,
			Codec: webrtc.RTPCodecCapability{
				MimeType:  webrtc.MimeTypeOpus,
				ClockRate: opusClockRate,
				Channels:  uint16(max(ogg.Header().Channels, 1)),
			},
			closer: ogg,
		}, nil
	}

	return nil, fmt.Errorf("%s: %w: %q", c.Name, errUnknownKind, c.Kind)
}

func (c Config) mimeType(def string) string {
	if c.MimeType != "" {
		return c.MimeType
	}

	return def
}

func mimeTypeForFourCC(fourCC string) (string, error) {
	switch strings.ToUpper(fourCC) {
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	default:
		return "", fmt.Errorf("%w %s", errUnknownFourCC, fourCC)
	}
}

// Queuer hands out scheduler queues round-robin.
type Queuer interface {
	NextQueue() int
}

// QueueFor returns the pinned queue of the entry or the next free one.
func (c Config) QueueFor(q Queuer) int {
	if c.Queue != nil {
		return *c.Queue
	}

	return q.NextQueue()
}
