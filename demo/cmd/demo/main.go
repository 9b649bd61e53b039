// Command demo serves the configured sources to browsers over WebRTC, with
// a websocket for signaling. Every watcher gets its own paced sources.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/aalekseevx/framepacer/demo/pkg/attr"
	"github.com/aalekseevx/framepacer/scheduler"
)

func main() {
	config, err := LoadConfig()
	if err != nil {
		slog.Error("load config", attr.Error(err))
		return
	}

	pcFactory, err := newPeerConnectionFactory(config)
	if err != nil {
		slog.Error("new peer connection factory", attr.Error(err))
		return
	}

	sched := scheduler.New(config.SchedulerOptions()...)
	handler := Handler{
		PeerConnectionFactory: pcFactory,
		Scheduler:             sched,
		Sources:               config.Sources,
	}

	mux := http.NewServeMux()
	mux.Handle("/watch", websocket.Handler(handler.Watch))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(ctx)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})
	g.Go(func() error {
		<-ctx.Done()

		return server.Shutdown(context.Background())
	})

	if err = g.Wait(); err != nil {
		slog.Error("listen and serve", attr.Error(err))
	}
}
