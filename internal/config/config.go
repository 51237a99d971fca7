// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package config holds the immutable run configuration passed by value
// to every component that needs it. There is no process-wide mutable
// configuration state.
package config

import (
	"os"
	"strings"
)

// DefaultDebuginfodServers is the built-in server list used when
// neither --debuginfod-urls nor DEBUGINFOD_URLS supplies one.
var DefaultDebuginfodServers = []string{
	"https://debuginfod.elfutils.org/",
	"https://debuginfod.ubuntu.com/",
	"https://debuginfod.fedoraproject.org/",
	"https://debuginfod.debian.net/",
}

// Config is the immutable configuration threaded through Scanner,
// Resolver, Debuginfod Client, and Exporter.
type Config struct {
	Directory string

	Verbose       bool
	LocalOnly     bool
	RemoteOnly    bool
	CheckRemote   bool
	ShowStripped  bool
	CheckDsym     bool
	Security      bool
	JSON          bool
	MaxDepth      int
	HasMaxDepth   bool
	FollowSymlinks bool

	Output         string
	HasOutput      bool
	CopyBinaries   bool
	DownloadRemote bool
	Force          bool

	DebuginfodURLs []string

	// Parallelism is the worker pool size. Zero means "use
	// runtime.NumCPU(), capped" (resolved by the scanner).
	Parallelism int
}

// ResolveDebuginfodServers applies the precedence order: --debuginfod-
// urls flag, then DEBUGINFOD_URLS env var, then the built-in default
// list.
func (c Config) ResolveDebuginfodServers() []string {
	if len(c.DebuginfodURLs) > 0 {
		return c.DebuginfodURLs
	}
	if env := os.Getenv("DEBUGINFOD_URLS"); env != "" {
		return strings.Fields(env)
	}
	return DefaultDebuginfodServers
}

// NoColor reports whether ANSI color must be suppressed in human mode.
func NoColor() bool {
	return os.Getenv("NO_COLOR") != ""
}

// Validate enforces the configuration contradictions that halt a run
// before any scan occurs: --download-remote or --copy-binaries without
// --output.
func (c Config) Validate() error {
	if c.DownloadRemote && !c.HasOutput {
		return errContradiction("--download-remote requires --output")
	}
	if c.CopyBinaries && !c.HasOutput {
		return errContradiction("--copy-binaries requires --output")
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errContradiction(msg string) error { return configError(msg) }
