package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation policy for --log-file.
const (
	logMaxSizeMB  = 100
	logMaxBackups = 5
	logMaxAgeDays = 14
)

// newLogger builds the process logger. Output goes to stdout unless a log
// file is configured, in which case it is rotated by size. The returned
// func releases the file handle.
func newLogger(cfg config) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		parsed, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return zerolog.Nop(), func() {}, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		level = parsed
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
			Compress:   true,
		}
		out = rotator
		closeFn = func() { _ = rotator.Close() }
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "bloomd").
		Logger()
	return logger, closeFn, nil
}
