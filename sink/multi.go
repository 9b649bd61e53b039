// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sink

import "github.com/aalekseevx/framepacer/pacing"

// Multi forwards the lifecycle and every frame to each of its sinks in order.
type Multi []pacing.Sink

var _ pacing.Sink = Multi(nil)

func (m Multi) Start() {
	for _, s := range m {
		s.Start()
	}
}

func (m Multi) Stop() {
	for _, s := range m {
		s.Stop()
	}
}

// Accept hands the same frame to every sink; sinks must not modify it.
func (m Multi) Accept(frame *pacing.Frame) {
	for _, s := range m {
		s.Accept(frame)
	}
}
