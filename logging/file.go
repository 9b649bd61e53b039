// SPDX-FileCopyrightText: 2025 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package logging provides log and dump outputs for paced media sources:
// file writers, log level parsing and line formatters for frames and RTP
// packets.
package logging

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	plogging "github.com/pion/logging"
)

// GetLogFile returns an io.WriteCloser for the specified file path.
// If file is empty, it returns a no-op writer.
// If file is "stdout", it returns os.Stdout wrapped in a nopCloser.
// Otherwise, it creates and returns the specified file.
func GetLogFile(file string) (io.WriteCloser, error) {
	if len(file) == 0 {
		return nopCloser{io.Discard}, nil
	}
	if file == "stdout" {
		return nopCloser{os.Stdout}, nil
	}
	//nolint:gosec
	fd, err := os.Create(file)
	if err != nil {
		return nil, err
	}
	bufwriter := bufio.NewWriterSize(fd, 4096)

	return &fileCloser{
		f:   fd,
		buf: bufwriter,
	}, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

type fileCloser struct {
	f   *os.File
	buf *bufio.Writer
}

func (f *fileCloser) Write(buf []byte) (int, error) {
	return f.buf.Write(buf)
}

func (f *fileCloser) Close() error {
	return errors.Join(f.buf.Flush(), f.f.Close())
}

var errUnknownLogLevel = errors.New("unknown log level")

// NewLoggerFactory returns a pion logger factory writing to w at the level
// named by logLevel (disable, error, warn, info, debug, trace).
func NewLoggerFactory(logLevel string, w io.Writer) (*plogging.DefaultLoggerFactory, error) {
	logLevels := map[string]plogging.LogLevel{
		"disable": plogging.LogLevelDisabled,
		"error":   plogging.LogLevelError,
		"warn":    plogging.LogLevelWarn,
		"info":    plogging.LogLevelInfo,
		"debug":   plogging.LogLevelDebug,
		"trace":   plogging.LogLevelTrace,
	}

	level, ok := logLevels[strings.ToLower(logLevel)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownLogLevel, logLevel)
	}

	return &plogging.DefaultLoggerFactory{
		Writer:          w,
		DefaultLogLevel: level,
		ScopeLevels:     make(map[string]plogging.LogLevel),
	}, nil
}
