package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
	"golang.org/x/net/websocket"

	"github.com/aalekseevx/framepacer/demo/pkg/attr"
	"github.com/aalekseevx/framepacer/demo/pkg/sources"
	"github.com/aalekseevx/framepacer/pacing"
	"github.com/aalekseevx/framepacer/scheduler"
	"github.com/aalekseevx/framepacer/sink"
)

const streamID = "framepacer"

type Handler struct {
	PeerConnectionFactory PeerConnectionFactory
	Scheduler             *scheduler.Scheduler
	Sources               []sources.Config
}

// session is the set of sources paced into one peer connection.
type session struct {
	mu      sync.Mutex
	sources []*pacing.Source
	media   []*sources.Media
}

func (s *session) start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, src := range s.sources {
		src.Start()
	}
}

func (s *session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, src := range s.sources {
		src.Stop()
		slog.Info("source stopped", attr.Source(src.Name()), attr.Stats(src.Stats()))
	}
}

func (s *session) close() error {
	s.stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, m := range s.media {
		errs = append(errs, m.Close())
	}
	s.media = nil

	return errors.Join(errs...)
}

func (h Handler) Watch(ws *websocket.Conn) {
	pc, err := h.PeerConnectionFactory.New()
	if err != nil {
		slog.Error("new peer connection", attr.Error(err))
		return
	}

	sess := &session{}
	defer func() {
		if err = sess.close(); err != nil {
			slog.Error("close session", attr.Error(err))
		}
		if err = pc.Close(); err != nil {
			slog.Error("close peer connection", attr.Error(err))
		}
	}()

	for _, config := range h.Sources {
		if err = h.addSource(pc, sess, config); err != nil {
			slog.Error("add source", attr.Source(config.Name), attr.Error(err))
		}
	}

	pc.OnSignalingStateChange(func(state webrtc.SignalingState) {
		slog.Info("signaling state changed", attr.State(state))
	})

	pc.OnICEGatheringStateChange(func(state webrtc.ICEGatheringState) {
		slog.Info("ice gathering state changed", attr.State(state))
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		slog.Info("ice connection state changed", attr.State(state))
		if state == webrtc.ICEConnectionStateConnected {
			sess.start()
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Info("connection state changed", attr.State(state))

		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			sess.stop()
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		slog.Error("create offer", attr.Error(err))
		return
	}

	if err = pc.SetLocalDescription(offer); err != nil {
		slog.Error("set local description", attr.Error(err))
		return
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	<-gatherComplete

	err = websocket.JSON.Send(ws, pc.LocalDescription())
	if err != nil {
		slog.Error("send local description", attr.Error(err))
		return
	}

	var answer webrtc.SessionDescription
	err = websocket.JSON.Receive(ws, &answer)
	if err != nil {
		slog.Error("receive remote description", attr.Error(err))
		return
	}

	err = pc.SetRemoteDescription(answer)
	if err != nil {
		slog.Error("set remote description", attr.Error(err))
		return
	}

	// blocks until the client goes away
	var closing struct{}
	_ = websocket.JSON.Receive(ws, &closing)
}

func (h Handler) addSource(pc *webrtc.PeerConnection, sess *session, config sources.Config) error {
	m, err := config.Open()
	if err != nil {
		return err
	}

	track, err := sink.NewTrack(m.Codec, config.Name, streamID)
	if err != nil {
		return errors.Join(fmt.Errorf("new track: %w", err), m.Close())
	}

	rtpSender, err := pc.AddTrack(track)
	if err != nil {
		return errors.Join(fmt.Errorf("add track: %w", err), m.Close())
	}

	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := rtpSender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()

	queue := config.QueueFor(h.Scheduler)
	opts := append(config.Options(),
		pacing.WithSink(track),
		pacing.WithListener(pacing.ListenerFuncs{
			OnStarted: func() {
				slog.Info("source started", attr.Source(config.Name), attr.Queue(queue))
			},
			OnFailed: func(err error) {
				slog.Error("source failed", attr.Source(config.Name), attr.Error(err))
			},
			OnCompleted: func() {
				slog.Info("source completed", attr.Source(config.Name))
			},
		}),
	)

	sess.mu.Lock()
	sess.sources = append(sess.sources, pacing.NewSource(config.Name, h.Scheduler, queue, m.Generator, opts...))
	sess.media = append(sess.media, m)
	sess.mu.Unlock()

	return nil
}
