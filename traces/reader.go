// Package traces reads video frame trace files. A trace lists, one frame
// per line, the frame number, its type, a legacy column, the presentation
// timestamp in seconds and the frame size in bytes.
package traces

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// FrameType represents the type of video frame.
type FrameType rune

const (
	// IFrame represents an I-frame in the video trace.
	IFrame FrameType = 'I'
	// PFrame represents a P-frame in the video trace.
	PFrame FrameType = 'P'
	// BFrame represents a B-frame in the video trace.
	BFrame FrameType = 'B'
	// UFrame represents an unknown frame type.
	UFrame FrameType = 'U'
)

// DefaultInterval is used as the frame interval of traces with a single frame.
const DefaultInterval = time.Second / 30

var (
	errTooFewFields      = errors.New("expected at least 5 fields")
	errNegativeSize      = errors.New("negative frame size")
	errTimestampNotAfter = errors.New("timestamp does not increase")
)

// String returns the string representation of the frame type.
func (ft FrameType) String() string {
	return string(ft)
}

// Frame represents a single frame entry from the trace file.
type Frame struct {
	// Number is the frame number in the sequence.
	Number int
	// Type is the type of the frame (I, P, or B).
	Type FrameType
	// Timestamp is the timestamp of the frame in seconds.
	Timestamp float64
	// Size is the size of the frame in bytes.
	Size int
}

// Trace represents a collection of frames loaded from a trace file.
type Trace struct {
	// Frames is the ordered list of frames in the trace.
	Frames []Frame
}

// Interval returns how long frame i is displayed: the gap to the next frame,
// or for the last frame the gap to the one before it.
func (t *Trace) Interval(i int) time.Duration {
	n := len(t.Frames)
	switch {
	case n < 2 || i < 0 || i >= n:
		return DefaultInterval
	case i+1 < n:
		return seconds(t.Frames[i+1].Timestamp - t.Frames[i].Timestamp)
	default:
		return seconds(t.Frames[i].Timestamp - t.Frames[i-1].Timestamp)
	}
}

// Duration returns the total playout time of the trace.
func (t *Trace) Duration() time.Duration {
	var total time.Duration
	for i := range t.Frames {
		total += t.Interval(i)
	}

	return total
}

// Bitrate returns the average bitrate of the trace in bits per second.
func (t *Trace) Bitrate() int {
	d := t.Duration()
	if d <= 0 {
		return 0
	}
	bytes := 0
	for _, f := range t.Frames {
		bytes += f.Size
	}

	return int(float64(bytes*8) / d.Seconds())
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ParseFrameType converts a string to a FrameType.
func ParseFrameType(s string) (FrameType, error) {
	switch s {
	case "I":
		return IFrame, nil
	case "P":
		return PFrame, nil
	case "B":
		return BFrame, nil
	case "U":
		return UFrame, nil
	default:
		return 0, fmt.Errorf("invalid frame type: %s", s)
	}
}

// ReadTraceFile reads a trace file and returns a Trace object.
func ReadTraceFile(filename string) (*Trace, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer file.Close()

	return ReadTrace(file)
}

// ReadTrace parses a trace from r. Text after '#' or '%' is a comment.
func ReadTrace(r io.Reader) (*Trace, error) {
	trace := &Trace{
		Frames: make([]Frame, 0),
	}

	scanner := bufio.NewScanner(r)
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()

		if idx := strings.IndexAny(line, "#%"); idx >= 0 {
			line = line[:idx]
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		frame, err := parseFrameLine(line)
		if err != nil {
			return nil, fmt.Errorf("error at line %d: %w", lineNumber, err)
		}
		// a zero or negative interval would stall playout
		if n := len(trace.Frames); n > 0 && frame.Timestamp <= trace.Frames[n-1].Timestamp {
			return nil, fmt.Errorf("error at line %d: %w: %f after %f",
				lineNumber, errTimestampNotAfter, frame.Timestamp, trace.Frames[n-1].Timestamp)
		}

		trace.Frames = append(trace.Frames, frame)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading trace file: %w", err)
	}

	return trace, nil
}

func parseFrameLine(line string) (Frame, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Frame{}, fmt.Errorf("%w, got %d", errTooFewFields, len(fields))
	}

	frameNumber, err := strconv.Atoi(fields[0])
	if err != nil {
		return Frame{}, fmt.Errorf("invalid frame number: %w", err)
	}

	frameType, err := ParseFrameType(fields[1])
	if err != nil {
		return Frame{}, err
	}

	ts, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return Frame{}, fmt.Errorf("invalid ts value: %w", err)
	}

	size, err := strconv.Atoi(fields[4])
	if err != nil {
		return Frame{}, fmt.Errorf("invalid frame size: %w", err)
	}
	if size < 0 {
		return Frame{}, fmt.Errorf("%w: %d", errNegativeSize, size)
	}

	return Frame{
		Number:    frameNumber,
		Type:      frameType,
		Timestamp: ts,
		Size:      size,
	}, nil
}
