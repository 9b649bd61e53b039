package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aalekseevx/framepacer/demo/pkg/sources"
	"github.com/aalekseevx/framepacer/scheduler"
)

var (
	errNoSources     = errors.New("no sources configured")
	errDuplicateName = errors.New("duplicate source name")
)

type SchedulerConfig struct {
	Queues  int           `yaml:"queues"`
	Workers int           `yaml:"workers"`
	Period  time.Duration `yaml:"period"`
}

func (c SchedulerConfig) Options() []scheduler.Option {
	var opts []scheduler.Option
	if c.Queues > 0 {
		opts = append(opts, scheduler.WithQueues(c.Queues))
	}
	if c.Workers > 0 {
		opts = append(opts, scheduler.WithWorkers(c.Workers))
	}
	if c.Period > 0 {
		opts = append(opts, scheduler.WithPeriod(c.Period))
	}

	return opts
}

type SourceConfig struct {
	sources.Config `yaml:",inline"`

	// Dump receives one line per paced frame.
	Dump string `yaml:"dump"`
	// RTPDump receives one line per RTP packet.
	RTPDump string `yaml:"rtp_dump"`
	// Record writes the packetized stream to an ivf (VP8) or ogg (Opus) file.
	Record string `yaml:"record"`
}

type Config struct {
	LogLevel    string          `yaml:"log_level"`
	LogFile     string          `yaml:"log_file"`
	RunDuration time.Duration   `yaml:"run_duration"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	Sources     []SourceConfig  `yaml:"sources"`
}

func LoadConfig() (Config, error) {
	configPath := flag.String("config", "", "path to config")
	flag.Parse()
	configBytes, err := os.ReadFile(*configPath)
	if err != nil {
		return Config{}, fmt.Errorf("read file: %w", err)
	}

	return parseConfig(configBytes)
}

func parseConfig(configBytes []byte) (Config, error) {
	config := Config{
		LogLevel: "info",
		LogFile:  "stdout",
	}
	err := yaml.Unmarshal(configBytes, &config)
	if err != nil {
		return Config{}, fmt.Errorf("yaml unmarshal: %w", err)
	}

	if len(config.Sources) == 0 {
		return Config{}, errNoSources
	}
	names := make(map[string]struct{}, len(config.Sources))
	for _, source := range config.Sources {
		if err = source.Validate(); err != nil {
			return Config{}, err
		}
		if _, ok := names[source.Name]; ok {
			return Config{}, fmt.Errorf("%w: %s", errDuplicateName, source.Name)
		}
		names[source.Name] = struct{}{}
	}

	return config, nil
}
