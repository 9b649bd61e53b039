// Command client watches the demo server and reports receive statistics of
// every paced track it gets.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/aalekseevx/framepacer/demo/pkg/attr"
	flogging "github.com/aalekseevx/framepacer/logging"
	"github.com/aalekseevx/framepacer/scheduler"
)

func main() {
	config, err := LoadConfig()
	if err != nil {
		slog.Error("load config", attr.Error(err))
		return
	}

	reportFile, err := flogging.GetLogFile(config.ReportFile)
	if err != nil {
		slog.Error("create stats file", attr.Error(err))
		return
	}
	defer func() {
		if err = reportFile.Close(); err != nil {
			slog.Error("close stats file", attr.Error(err))
		}
	}()
	rep := newReporter(reportFile)

	loggerFactory := logging.NewDefaultLoggerFactory()
	sched := scheduler.New(scheduler.WithLoggerFactory(loggerFactory))
	var rp *replayer
	if config.ReplayDir != "" {
		rp = newReplayer(config.ReplayDir, sched, loggerFactory)
		defer func() {
			if err = rp.stop(); err != nil {
				slog.Error("stop replay", attr.Error(err))
			}
		}()
	}

	wsConfig, err := websocket.NewConfig(config.Endpoint, "http://localhost")
	if err != nil {
		slog.Error("new ws config", attr.Error(err))
		return
	}

	ws, err := websocket.DialConfig(wsConfig)
	if err != nil {
		slog.Error("dial ws", attr.Error(err))
		return
	}
	defer func() {
		if err = ws.Close(); err != nil {
			slog.Error("close ws", attr.Error(err))
		}
	}()

	pc, err := newPeerConnection(config, loggerFactory, rep, rp)
	if err != nil {
		slog.Error("new peer connection", attr.Error(err))
		return
	}
	defer func() {
		if err = pc.Close(); err != nil {
			slog.Error("close peer connection", attr.Error(err))
		}
	}()

	if err = answer(ws, pc); err != nil {
		slog.Error("signaling", attr.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.SessionDuration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if rp != nil {
		g.Go(func() error {
			return sched.Run(ctx)
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(config.ReportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				if _, err := rep.report(now); err != nil {
					return err
				}
			}
		}
	})

	if err = g.Wait(); err != nil {
		slog.Error("report", attr.Error(err))
	}
}

func newPeerConnection(
	config Config,
	loggerFactory logging.LoggerFactory,
	rep *reporter,
	rp *replayer,
) (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	err := m.RegisterDefaultCodecs()
	if err != nil {
		return nil, err
	}

	ir := &interceptor.Registry{}
	err = webrtc.RegisterDefaultInterceptors(m, ir)
	if err != nil {
		return nil, err
	}

	si, err := stats.NewInterceptor()
	if err != nil {
		return nil, err
	}
	si.OnNewPeerConnection(func(_ string, getter stats.Getter) {
		rep.setGetter(getter)
	})
	ir.Add(si)

	se := webrtc.SettingEngine{}
	se.LoggerFactory = loggerFactory

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir), webrtc.WithSettingEngine(se))

	var servers []webrtc.ICEServer
	if config.IceServer != "" {
		servers = append(servers, webrtc.ICEServer{URLs: []string{config.IceServer}})
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, err
	}

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		slog.Info("ice connection state changed", attr.State(state))
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Info("connection state changed", attr.State(state))
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		ssrc := remote.SSRC()
		mid := receiver.RTPTransceiver().Mid()

		slog.Info("track opened", attr.SSRC(ssrc), attr.Mid(mid), attr.Source(remote.ID()))
		rep.open(ssrc, remote.ID())
		replay := rp
		if replay != nil {
			if err := replay.open(ssrc, remote.ID(), remote.Codec().ClockRate); err != nil {
				slog.Error("open replay", attr.SSRC(ssrc), attr.Error(err))
				replay = nil
			}
		}

		defer func() {
			slog.Info("track closed", attr.SSRC(ssrc), attr.Mid(mid))
			rep.close(ssrc)
			if replay != nil {
				replay.close(ssrc)
			}
		}()

		for {
			pkt, _, err := remote.ReadRTP()
			if err != nil {
				return
			}
			rep.packet(ssrc, time.Now())
			if replay != nil {
				replay.packet(ssrc, pkt)
			}
		}
	})

	return pc, nil
}

func answer(ws *websocket.Conn, pc *webrtc.PeerConnection) error {
	var offer webrtc.SessionDescription
	err := websocket.JSON.Receive(ws, &offer)
	if err != nil {
		return err
	}

	err = pc.SetRemoteDescription(offer)
	if err != nil {
		return err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return err
	}

	err = pc.SetLocalDescription(answer)
	if err != nil {
		return err
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	<-gatherComplete

	return websocket.JSON.Send(ws, pc.LocalDescription())
}
