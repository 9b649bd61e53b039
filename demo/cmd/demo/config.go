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

var errNoSources = errors.New("no sources configured")

type Config struct {
	Port      int              `yaml:"port"`
	IceServer string           `yaml:"ice_server"`
	Period    time.Duration    `yaml:"period"`
	Queues    int              `yaml:"queues"`
	Sources   []sources.Config `yaml:"sources"`
}

func (c Config) SchedulerOptions() []scheduler.Option {
	var opts []scheduler.Option
	if c.Period > 0 {
		opts = append(opts, scheduler.WithPeriod(c.Period))
	}
	if c.Queues > 0 {
		opts = append(opts, scheduler.WithQueues(c.Queues))
	}

	return opts
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
	var config Config
	err := yaml.Unmarshal(configBytes, &config)
	if err != nil {
		return Config{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if len(config.Sources) == 0 {
		return Config{}, errNoSources
	}
	for _, source := range config.Sources {
		if err = source.Validate(); err != nil {
			return Config{}, err
		}
	}

	return config, nil
}
