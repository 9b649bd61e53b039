// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package filesrc

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ivfFile builds an IVF container with a millisecond timebase.
func ivfFile(t *testing.T, timestamps []uint64, sizes []int) []byte {
	t.Helper()

	var b bytes.Buffer
	b.WriteString("DKIF")
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint16(0)))  // version
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint16(32))) // header size
	b.WriteString("VP80")
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint16(640)))
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint16(480)))
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint32(1000))) // timebase denominator
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint32(1)))    // timebase numerator
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint32(len(timestamps))))
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint32(0)))

	for i, ts := range timestamps {
		require.NoError(t, binary.Write(&b, binary.LittleEndian, uint32(sizes[i])))
		require.NoError(t, binary.Write(&b, binary.LittleEndian, ts))
		b.Write(bytes.Repeat([]byte{byte(i + 1)}, sizes[i]))
	}

	return b.Bytes()
}

func TestIVF_FramesAndEOM(t *testing.T) {
	ivf, err := NewIVF(bytes.NewReader(ivfFile(t, []uint64{0, 40, 100}, []int{10, 20, 30})))
	require.NoError(t, err)
	assert.Equal(t, "VP80", ivf.Header().FourCC)

	f := ivf.NextFrame(0)
	require.NotNil(t, f)
	assert.Equal(t, bytes.Repeat([]byte{1}, 10), f.Data)
	assert.Equal(t, 40*time.Millisecond, f.Duration)
	assert.False(t, f.EOM)

	f = ivf.NextFrame(0)
	require.NotNil(t, f)
	assert.Len(t, f.Data, 20)
	assert.Equal(t, 60*time.Millisecond, f.Duration)
	assert.False(t, f.EOM)

	f = ivf.NextFrame(0)
	require.NotNil(t, f)
	assert.Len(t, f.Data, 30)
	assert.Equal(t, 60*time.Millisecond, f.Duration)
	assert.True(t, f.EOM)

	assert.Nil(t, ivf.NextFrame(0))
	assert.NoError(t, ivf.Err())
	assert.NoError(t, ivf.Close())
}

func TestIVF_SingleFrame(t *testing.T) {
	ivf, err := NewIVF(bytes.NewReader(ivfFile(t, []uint64{0}, []int{5})))
	require.NoError(t, err)

	f := ivf.NextFrame(0)
	require.NotNil(t, f)
	assert.True(t, f.EOM)
	assert.Equal(t, time.Millisecond, f.Duration)
}

func TestIVF_Empty(t *testing.T) {
	ivf, err := NewIVF(bytes.NewReader(ivfFile(t, nil, nil)))
	require.NoError(t, err)

	assert.Nil(t, ivf.NextFrame(0))
	assert.NoError(t, ivf.Err())
}

func TestIVF_TruncatedFrame(t *testing.T) {
	data := ivfFile(t, []uint64{0, 40}, []int{10, 20})
	ivf, err := NewIVF(bytes.NewReader(data[:len(data)-5]))
	require.NoError(t, err)

	f := ivf.NextFrame(0)
	require.NotNil(t, f)
	assert.True(t, f.EOM)
	assert.Error(t, ivf.Err())
}

func TestOpenIVF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.ivf")
	require.NoError(t, os.WriteFile(path, ivfFile(t, []uint64{0, 33}, []int{4, 4}), 0o600))

	ivf, err := OpenIVF(path)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, ivf.Close())
	}()

	assert.NotNil(t, ivf.NextFrame(0))
	assert.True(t, ivf.NextFrame(0).EOM)

	_, err = OpenIVF(filepath.Join(t.TempDir(), "missing.ivf"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.ivf")
	require.NoError(t, os.WriteFile(bad, []byte("not an ivf file at all, not even close"), 0o600))
	_, err = OpenIVF(bad)
	assert.Error(t, err)
}

func TestOgg_PagesAndEOM(t *testing.T) {
	var b bytes.Buffer
	w, err := oggwriter.NewWith(&b, 48000, 2)
	require.NoError(t, err)

	payloads := [][]byte{{0xfc, 1, 1}, {0xfc, 2, 2, 2}, {0xfc, 3}}
	for i, payload := range payloads {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: payload,
		}))
	}

	ogg, err := NewOgg(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), ogg.Header().Channels)

	for i, payload := range payloads {
		f := ogg.NextFrame(0)
		require.NotNil(t, f)
		assert.Equal(t, payload, f.Data)
		assert.Equal(t, 20*time.Millisecond, f.Duration)
		assert.Equal(t, i == len(payloads)-1, f.EOM)
	}
	assert.Nil(t, ogg.NextFrame(0))
	assert.NoError(t, ogg.Err())
	assert.NoError(t, ogg.Close())
}

func TestOpenOgg_Errors(t *testing.T) {
	_, err := OpenOgg(filepath.Join(t.TempDir(), "missing.ogg"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.ogg")
	require.NoError(t, os.WriteFile(bad, []byte("OggS but not really"), 0o600))
	_, err = OpenOgg(bad)
	assert.Error(t, err)
}

func TestFallbackDuration(t *testing.T) {
	assert.Equal(t, time.Second, fallbackDuration(time.Second, time.Millisecond, time.Minute))
	assert.Equal(t, time.Millisecond, fallbackDuration(0, time.Millisecond, time.Minute))
	assert.Equal(t, time.Minute, fallbackDuration(-1, 0, time.Minute))
}

func TestOpusDuration(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want time.Duration
	}{
		{"empty", nil, 0},
		{"silk 20ms", []byte{0x08}, 20 * time.Millisecond},
		{"silk 60ms", []byte{0x18}, 60 * time.Millisecond},
		{"hybrid 10ms two frames", []byte{0x61}, 20 * time.Millisecond},
		{"celt 2.5ms", []byte{0x80}, 2500 * time.Microsecond},
		{"celt 20ms", []byte{0xfc}, 20 * time.Millisecond},
		{"celt 20ms arbitrary count", []byte{0xff, 0x03}, 60 * time.Millisecond},
		{"arbitrary count truncated", []byte{0xff}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, opusDuration(tt.data))
		})
	}
}
