// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package controller

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
)

// Logger defines the interface for sinks of worker log output. Workers log
// to stderr (stdout is their data channel); the controller captures that
// stderr and feeds it, line by line and tagged with the slot name, to a set
// of Loggers.
type Logger interface {
	// Log submits a log line from the named worker.
	Log(name string, line string)
	// Close closes the logger.
	Close()
}

// TerminalLogger prints worker log lines on the controller's own stderr.
type TerminalLogger struct{}

// NewTerminalLogger creates a new TerminalLogger.
func NewTerminalLogger() *TerminalLogger {
	return &TerminalLogger{}
}

// Log implements Logger.
func (t *TerminalLogger) Log(name, line string) {
	fmt.Fprintf(os.Stderr, "%4s | %s\n", name, line)
}

// Close implements Logger.
func (t *TerminalLogger) Close() {}

// FileLogger appends worker log lines to a file.
type FileLogger struct {
	file *os.File
}

// NewFileLogger returns a new FileLogger writing to the given path.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileLogger{file: f}, nil
}

// Log implements Logger.
func (f *FileLogger) Log(name, line string) {
	fmt.Fprintf(f.file, "%s : %s\n", name, line)
}

// Close implements Logger.
func (f *FileLogger) Close() {
	f.file.Close()
}

// LogDemuxer is a Writer that splits a worker's stderr stream into lines and
// hands them to a set of Loggers. One demuxer per worker process; it is
// handed to exec.Cmd as the child's Stderr.
type LogDemuxer struct {
	name    string
	loggers []Logger
	buffer  []byte
}

// NewLogDemuxer creates a LogDemuxer for the named worker.
func NewLogDemuxer(name string, loggers []Logger) *LogDemuxer {
	return &LogDemuxer{name: name, loggers: loggers}
}

// Write implements io.Writer. 's' might contain multiple lines, or end in
// the middle of one; partial lines are buffered until the next Write.
func (l *LogDemuxer) Write(s []byte) (n int, err error) {
	reader := bufio.NewReader(io.MultiReader(
		bytes.NewReader(l.buffer),
		bytes.NewReader(s)))
	for {
		line, e := reader.ReadBytes('\n')
		if e == nil {
			lineStr := string(bytes.TrimSpace(line))
			for _, logger := range l.loggers {
				logger.Log(l.name, lineStr)
			}
		} else if e == io.EOF {
			// Hit the end, buffer whatever's left.
			l.buffer = line
			return len(s), nil
		} else {
			return 0, e
		}
	}
}
