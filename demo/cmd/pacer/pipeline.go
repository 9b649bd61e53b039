package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/packetdump"
	plogging "github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/aalekseevx/framepacer/logging"
	"github.com/aalekseevx/framepacer/pacing"
	"github.com/aalekseevx/framepacer/scheduler"
	"github.com/aalekseevx/framepacer/sink"
)

var errUnsupportedRecord = errors.New("unsupported record format")

// pipeline is one configured source together with the sinks it feeds.
type pipeline struct {
	name   string
	source *pacing.Source
	queue  int

	done     chan struct{}
	doneOnce sync.Once

	closers []io.Closer
}

func newPipeline(config SourceConfig, sched *scheduler.Scheduler, loggerFactory plogging.LoggerFactory) (_ *pipeline, err error) {
	p := &pipeline{
		name:  config.Name,
		queue: config.QueueFor(sched),
		done:  make(chan struct{}),
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, p.Close())
		}
	}()

	m, err := config.Open()
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, m)

	sinks, err := p.sinks(config, m.Codec, loggerFactory)
	if err != nil {
		return nil, err
	}

	opts := append(config.Options(),
		pacing.WithSink(sinks),
		pacing.WithLoggerFactory(loggerFactory),
		pacing.WithListener(pacing.ListenerFuncs{
			OnCompleted: p.finish,
			OnFailed:    func(error) { p.finish() },
		}),
	)
	p.source = pacing.NewSource(config.Name, sched, p.queue, m.Generator, opts...)

	return p, nil
}

func (p *pipeline) sinks(
	config SourceConfig,
	codec webrtc.RTPCodecCapability,
	loggerFactory plogging.LoggerFactory,
) (sink.Multi, error) {
	var sinks sink.Multi

	if config.Dump != "" {
		w, err := logging.GetLogFile(config.Dump)
		if err != nil {
			return nil, fmt.Errorf("frame dump: %w", err)
		}
		p.closers = append(p.closers, w)
		sinks = append(sinks, sink.NewDump(w))
	}

	if config.RTPDump != "" {
		writer, err := p.rtpDump(config.RTPDump, codec)
		if err != nil {
			return nil, err
		}
		s, err := sink.NewRTPForCodec(writer, codec, sink.WithLoggerFactory(loggerFactory))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}

	if config.Record != "" {
		writer, err := p.recorder(config.Record, codec)
		if err != nil {
			return nil, err
		}
		s, err := sink.NewRTPForCodec(sink.MediaWriter(writer), codec, sink.WithLoggerFactory(loggerFactory))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}

	return sinks, nil
}

// rtpDump returns a writer that logs every packet through the packetdump
// interceptor and then discards it.
func (p *pipeline) rtpDump(path string, codec webrtc.RTPCodecCapability) (interceptor.RTPWriter, error) {
	w, err := logging.GetLogFile(path)
	if err != nil {
		return nil, fmt.Errorf("rtp dump: %w", err)
	}

	formatter := &logging.RTPFormatter{}
	factory, err := packetdump.NewSenderInterceptor(
		packetdump.RTPFormatter(formatter.RTPFormat),
		packetdump.RTPWriter(w),
	)
	if err != nil {
		_ = w.Close()

		return nil, fmt.Errorf("rtp dump: %w", err)
	}
	dumper, err := factory.NewInterceptor("")
	if err != nil {
		_ = w.Close()

		return nil, fmt.Errorf("rtp dump: %w", err)
	}
	// the dumper flushes into w, so it has to be closed first
	p.closers = append(p.closers, dumper, w)

	return dumper.BindLocalStream(&interceptor.StreamInfo{
		ID:        p.name,
		MimeType:  codec.MimeType,
		ClockRate: codec.ClockRate,
		Channels:  codec.Channels,
	}, interceptor.RTPWriterFunc(func(header *rtp.Header, payload []byte, _ interceptor.Attributes) (int, error) {
		return header.MarshalSize() + len(payload), nil
	})), nil
}

func (p *pipeline) recorder(path string, codec webrtc.RTPCodecCapability) (media.Writer, error) {
	var (
		w   media.Writer
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".ivf" && strings.EqualFold(codec.MimeType, webrtc.MimeTypeVP8):
		w, err = ivfwriter.New(path)
	case ext == ".ogg" && strings.EqualFold(codec.MimeType, webrtc.MimeTypeOpus):
		w, err = oggwriter.New(path, codec.ClockRate, max(codec.Channels, 1))
	default:
		return nil, fmt.Errorf("%w: %s for %s", errUnsupportedRecord, path, codec.MimeType)
	}
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	p.closers = append(p.closers, w)

	return w, nil
}

func (p *pipeline) finish() {
	p.doneOnce.Do(func() { close(p.done) })
}

// Done is closed once the source has played to its end.
func (p *pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil

	return errors.Join(errs...)
}
