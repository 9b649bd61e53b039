package main

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/aalekseevx/framepacer/demo/pkg/attr"
	flogging "github.com/aalekseevx/framepacer/logging"
	"github.com/aalekseevx/framepacer/pacing"
	"github.com/aalekseevx/framepacer/relay"
	"github.com/aalekseevx/framepacer/scheduler"
	"github.com/aalekseevx/framepacer/sink"
)

// replayer reassembles the frames of every received track and paces them
// again in media time, dumping one file per track. It shows how far the
// arrival schedule drifted from the schedule the server paced with.
type replayer struct {
	dir           string
	sched         *scheduler.Scheduler
	loggerFactory logging.LoggerFactory

	mu     sync.Mutex
	tracks map[webrtc.SSRC]*replayTrack
}

type replayTrack struct {
	name      string
	buffer    *relay.Buffer
	source    *pacing.Source
	dump      *sink.Dump
	clockRate uint32

	frame    []byte
	ts       uint32
	hasFrame bool
	last     time.Duration

	closeOnce sync.Once
	out       io.WriteCloser
}

func newReplayer(dir string, sched *scheduler.Scheduler, loggerFactory logging.LoggerFactory) *replayer {
	return &replayer{
		dir:           dir,
		sched:         sched,
		loggerFactory: loggerFactory,
		tracks:        map[webrtc.SSRC]*replayTrack{},
	}
}

func (r *replayer) open(ssrc webrtc.SSRC, name string, clockRate uint32) error {
	out, err := flogging.GetLogFile(filepath.Join(r.dir, filepath.Base(name)+".csv"))
	if err != nil {
		return err
	}

	t := &replayTrack{
		name:      name,
		buffer:    relay.NewBuffer(relay.WithLoggerFactory(r.loggerFactory)),
		dump:      sink.NewDump(out),
		clockRate: clockRate,
		out:       out,
	}
	t.source = pacing.NewSource(name, r.sched, r.sched.NextQueue(), t.buffer,
		pacing.WithSink(t.dump),
		pacing.WithLoggerFactory(r.loggerFactory),
		pacing.WithListener(pacing.ListenerFuncs{
			OnCompleted: func() {
				slog.Info("replay completed", attr.Source(name), attr.Stats(t.source))
				if err := t.close(); err != nil {
					slog.Error("close replay file", attr.Source(name), attr.Error(err))
				}
			},
		}),
	)
	t.buffer.Attach(t.source)

	r.mu.Lock()
	r.tracks[ssrc] = t
	r.mu.Unlock()

	t.source.Start()

	return nil
}

func (r *replayer) track(ssrc webrtc.SSRC) *replayTrack {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tracks[ssrc]
}

// packet appends pkt to the frame being assembled. Packets of one frame share
// the RTP timestamp; a new timestamp completes the previous frame.
func (r *replayer) packet(ssrc webrtc.SSRC, pkt *rtp.Packet) {
	t := r.track(ssrc)
	if t == nil {
		return
	}

	if t.hasFrame && pkt.Timestamp != t.ts {
		t.last = t.ticks(pkt.Timestamp - t.ts)
		t.push()
	}
	t.frame = append(t.frame, pkt.Payload...)
	t.ts = pkt.Timestamp
	t.hasFrame = true
}

// close flushes the pending frame and ends the track's stream. The source
// completes once it has paced what is left.
func (r *replayer) close(ssrc webrtc.SSRC) {
	t := r.track(ssrc)
	if t == nil {
		return
	}

	if t.hasFrame {
		t.push()
	}
	t.buffer.Close()
}

// stop stops every source still pacing and closes the dump files.
func (r *replayer) stop() error {
	r.mu.Lock()
	tracks := make([]*replayTrack, 0, len(r.tracks))
	for _, t := range r.tracks {
		tracks = append(tracks, t)
	}
	r.mu.Unlock()

	var errs []error
	for _, t := range tracks {
		t.source.Stop()
		if err := t.close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (t *replayTrack) ticks(n uint32) time.Duration {
	if t.clockRate == 0 {
		return 0
	}

	return time.Duration(n) * time.Second / time.Duration(t.clockRate)
}

func (t *replayTrack) push() {
	err := t.buffer.Push(&pacing.Frame{Data: t.frame, Duration: t.last})
	if err != nil {
		slog.Warn("replay push", attr.Source(t.name), attr.Error(err))
	}
	t.frame = nil
	t.hasFrame = false
}

func (t *replayTrack) close() (err error) {
	t.closeOnce.Do(func() {
		err = errors.Join(t.dump.Err(), t.out.Close())
	})

	return err
}
