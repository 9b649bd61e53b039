// Command pacer paces the configured sources offline and writes what they
// produce to dump files.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/aalekseevx/framepacer/demo/pkg/attr"
	"github.com/aalekseevx/framepacer/logging"
	"github.com/aalekseevx/framepacer/scheduler"
)

func main() {
	config, err := LoadConfig()
	if err != nil {
		slog.Error("load config", attr.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, config); err != nil {
		slog.Error("run", attr.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, config Config) (err error) {
	logFile, err := logging.GetLogFile(config.LogFile)
	if err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	defer func() {
		err = errors.Join(err, logFile.Close())
	}()

	loggerFactory, err := logging.NewLoggerFactory(config.LogLevel, logFile)
	if err != nil {
		return err
	}

	sched := scheduler.New(append(config.Scheduler.Options(), scheduler.WithLoggerFactory(loggerFactory))...)

	pipelines := make([]*pipeline, 0, len(config.Sources))
	defer func() {
		for _, p := range pipelines {
			err = errors.Join(err, p.Close())
		}
	}()
	for _, source := range config.Sources {
		p, pErr := newPipeline(source, sched, loggerFactory)
		if pErr != nil {
			return fmt.Errorf("source %s: %w", source.Name, pErr)
		}
		pipelines = append(pipelines, p)
	}

	if config.RunDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RunDuration)
		defer cancel()
	}

	runCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return sched.Run(gCtx)
	})

	for _, p := range pipelines {
		slog.Info("starting source", attr.Source(p.name), attr.Queue(p.queue))
		p.source.Start()
	}

	g.Go(func() error {
		defer stopScheduler()

		for _, p := range pipelines {
			select {
			case <-p.Done():
				slog.Info("source completed", attr.Source(p.name))
			case <-gCtx.Done():
			}
		}
		for _, p := range pipelines {
			slog.Info("stopping source", attr.Source(p.name), attr.Stats(p.source.Stats()))
			p.source.Stop()
		}

		return nil
	})

	return g.Wait()
}
