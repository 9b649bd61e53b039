package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalekseevx/framepacer/demo/pkg/sources"
)

func TestParseConfig(t *testing.T) {
	config, err := parseConfig([]byte(`
run_duration: 5s
scheduler:
  queues: 2
  period: 10ms
sources:
  - name: cam
    kind: perfect
    fps: 25
    bitrate: 240000
    dump: frames.csv
    rtp_dump: rtp.csv
  - name: mic
    kind: ogg
    path: audio.ogg
    queue: 1
`))
	require.NoError(t, err)

	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, "stdout", config.LogFile)
	assert.Equal(t, 5*time.Second, config.RunDuration)
	assert.Equal(t, SchedulerConfig{Queues: 2, Period: 10 * time.Millisecond}, config.Scheduler)
	assert.Len(t, config.Scheduler.Options(), 2)

	require.Len(t, config.Sources, 2)
	assert.Equal(t, "cam", config.Sources[0].Name)
	assert.Equal(t, sources.KindPerfect, config.Sources[0].Kind)
	assert.Equal(t, 25, config.Sources[0].FPS)
	assert.Equal(t, "frames.csv", config.Sources[0].Dump)
	assert.Equal(t, "rtp.csv", config.Sources[0].RTPDump)
	require.NotNil(t, config.Sources[1].Queue)
	assert.Equal(t, 1, *config.Sources[1].Queue)
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		err    error
	}{
		{"no sources", "log_level: debug\n", errNoSources},
		{"duplicate", "sources:\n  - {name: a, kind: perfect}\n  - {name: a, kind: statistical}\n", errDuplicateName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig([]byte(tt.config))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := parseConfig([]byte("sources:\n  - {name: a, kind: webcam}\n"))
	assert.Error(t, err)

	_, err = parseConfig([]byte("sources: [\n"))
	assert.ErrorContains(t, err, "yaml unmarshal")
}
