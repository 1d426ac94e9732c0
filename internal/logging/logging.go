// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging sets up the structured file logger. The terminal belongs
// to the conversation, so log output never goes to stdout or stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Logger is a logrus logger bound to a log file.
type Logger struct {
	*logrus.Logger
	file *os.File
}

// Open creates a logger appending to path at the given level.
//
// The returned Logger is always usable: if the file cannot be opened the
// logger discards its output and the error is returned alongside it.
func Open(path, level string) (*Logger, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	l.SetOutput(io.Discard)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	logger := &Logger{Logger: l}
	if path == "" {
		return logger, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return logger, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return logger, fmt.Errorf("open log file: %w", err)
	}

	logger.file = f
	l.SetOutput(f)
	return logger, nil
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l}
}

// Path returns the log file path, or "" when output is discarded.
func (l *Logger) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	l.Logger.SetOutput(io.Discard)
	err := l.file.Close()
	l.file = nil
	return err
}
