package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	config, err := parseConfig([]byte(`
port: 8080
ice_server: stun:stun.l.google.com:19302
period: 10ms
sources:
  - name: video
    kind: ivf
    path: video.ivf
  - name: synthetic
    kind: statistical
    bitrate: 500000
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, 10*time.Millisecond, config.Period)
	assert.Len(t, config.SchedulerOptions(), 1)
	require.Len(t, config.Sources, 2)
	assert.Equal(t, "video.ivf", config.Sources[0].Path)

	_, err = parseConfig([]byte("port: 8080\n"))
	assert.ErrorIs(t, err, errNoSources)

	_, err = parseConfig([]byte("sources:\n  - {name: x, kind: ivf}\n"))
	assert.Error(t, err)
}

func TestPeerConnectionFactory(t *testing.T) {
	factory, err := newPeerConnectionFactory(Config{})
	require.NoError(t, err)

	pc, err := factory.New()
	require.NoError(t, err)
	assert.NoError(t, pc.Close())
}
