// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package logx wires up structured logging for symwalker. Log lines go
// to stderr, apart from the JSON/human report; structured diagnostics
// (permission errors, malformed binaries, network hiccups) are carried
// in the report's errors list, and the scanner also logs each
// unreadable directory here.
package logx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how New builds a logger.
type Config struct {
	// Verbose raises the level to debug.
	Verbose bool
	// JSON disables the pretty console writer (kept plain when the
	// report stream itself is JSON, so stdout stays a single JSON
	// document).
	JSON bool
	// Output defaults to os.Stderr so it never interleaves with a JSON
	// report written to stdout.
	Output io.Writer
}

// New builds a zerolog.Logger for the given run configuration.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if !cfg.JSON {
		noColor := os.Getenv("NO_COLOR") != ""
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    noColor,
		}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, used by components in
// tests that don't care about log output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
