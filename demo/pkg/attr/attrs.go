package attr

import (
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"
)

func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

func State[T fmt.Stringer](state T) slog.Attr {
	return slog.String("state", state.String())
}

func SSRC(ssrc webrtc.SSRC) slog.Attr {
	return slog.Uint64("ssrc", uint64(ssrc))
}

func Mid(mid string) slog.Attr {
	return slog.String("mid", mid)
}

// Source names the paced source a record belongs to.
func Source(name string) slog.Attr {
	return slog.String("source", name)
}

// Queue is the scheduler queue a source runs on.
func Queue(queue int) slog.Attr {
	return slog.Int("queue", queue)
}

// Stats renders a statistics snapshot.
func Stats(stats fmt.Stringer) slog.Attr {
	return slog.String("stats", stats.String())
}
