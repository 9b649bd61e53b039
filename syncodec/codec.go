// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package syncodec provides synthetic codecs that generate media frames on
// demand. They simulate encoders with a configurable bitrate and plug into a
// pacing.Source as its generator.
package syncodec

import (
	"errors"
	"time"

	"github.com/aalekseevx/framepacer/pacing"
)

var (
	errInvalidFPS     = errors.New("frames per second must be positive")
	errNoTraces       = errors.New("no traces provided")
	errUnknownQuality = errors.New("specified quality does not exist in the provided traces")
	errNoQualities    = errors.New("no qualities defined for trace codec")
)

// Codec is a frame generator with an adjustable target bitrate.
type Codec interface {
	pacing.Generator

	// GetTargetBitrate returns the current target bitrate in bits per second.
	GetTargetBitrate() int

	// SetTargetBitrate sets the target bitrate in bits per second.
	SetTargetBitrate(int)
}

// frameInterval returns the duration of one frame at fps frames per second.
func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = defaultFPS
	}

	return time.Second / time.Duration(fps)
}

// frameSize returns the bytes per frame for bitrate at fps.
func frameSize(bitrate, fps int) int {
	if fps <= 0 {
		fps = defaultFPS
	}

	return bitrate / (8 * fps)
}
