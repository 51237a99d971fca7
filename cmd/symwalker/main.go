// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Command symwalker drives the scan/resolve/report/export pipeline
// from a terminal. Argument parsing, exit-code translation, and
// process wiring live here; none of the resolution logic does.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/exporter"
	"github.com/19h/symwalker/internal/logx"
	"github.com/19h/symwalker/internal/reporter"
	"github.com/19h/symwalker/internal/scanerr"
	"github.com/19h/symwalker/internal/scanner"
	"github.com/akamensky/argparse"
)

func main() {
	os.Exit(run(os.Args))
}

func run(argv []string) int {
	p := argparse.NewParser("symwalker",
		"Walks a directory tree, identifies ELF/Mach-O binaries, and locates their debug-information artifacts")

	directory := p.StringPositional(&argparse.Options{Required: true, Help: "Root directory to scan"})
	verbose := p.Flag("v", "verbose", &argparse.Options{Help: "Emit extended per-binary block in human mode"})
	localOnly := p.Flag("", "local-only", &argparse.Options{Help: "Suppress records without a local debug path"})
	remoteOnly := p.Flag("", "remote-only", &argparse.Options{Help: "Suppress records without a remote URL (implies --check-remote)"})
	checkRemote := p.Flag("", "check-remote", &argparse.Options{Help: "Enable Debuginfod Client probes"})
	output := p.String("o", "output", &argparse.Options{Help: "Enable the Exporter, writing into this directory"})
	copyBinaries := p.Flag("", "copy-binaries", &argparse.Options{Help: "Copy binaries into the output directory"})
	downloadRemote := p.Flag("", "download-remote", &argparse.Options{Help: "Fetch debuginfo bodies into the output directory (requires --output)"})
	force := p.Flag("f", "force", &argparse.Options{Help: "Allow overwriting existing files in the output directory"})
	jsonMode := p.Flag("", "json", &argparse.Options{Help: "Render the result stream as JSON"})
	maxDepth := p.String("", "max-depth", &argparse.Options{Help: "Traversal depth cap, counting descents from the root"})
	followSymlinks := p.Flag("", "follow-symlinks", &argparse.Options{Help: "Follow symlinks, with cycle detection"})
	showStripped := p.Flag("", "show-stripped", &argparse.Options{Help: "Include stripped binaries with no symbols found"})
	debuginfodURLs := p.String("", "debuginfod-urls", &argparse.Options{Help: "Comma-separated debuginfod server override list"})
	checkDsym := p.Flag("", "check-dsym", &argparse.Options{Help: "Enable extended dSYM search locations (Xcode DerivedData/Archives)"})
	security := p.Flag("", "security", &argparse.Options{Help: "Populate mitigation fields in output"})

	if err := p.Parse(argv); err != nil {
		fmt.Fprintln(os.Stderr, p.Usage(err))
		return 2
	}

	cfg := config.Config{
		Directory:      *directory,
		Verbose:        *verbose,
		LocalOnly:      *localOnly,
		RemoteOnly:     *remoteOnly,
		CheckRemote:    *checkRemote || *remoteOnly,
		ShowStripped:   *showStripped,
		CheckDsym:      *checkDsym,
		Security:       *security,
		JSON:           *jsonMode,
		FollowSymlinks: *followSymlinks,
		Output:         *output,
		HasOutput:      *output != "",
		CopyBinaries:   *copyBinaries,
		DownloadRemote: *downloadRemote,
		Force:          *force,
	}

	if *maxDepth != "" {
		n, err := strconv.Atoi(*maxDepth)
		if err != nil {
			fmt.Fprintln(os.Stderr, "symwalker: --max-depth must be an integer")
			return 2
		}
		cfg.MaxDepth = n
		cfg.HasMaxDepth = true
	}
	if *debuginfodURLs != "" {
		cfg.DebuginfodURLs = strings.Split(*debuginfodURLs, ",")
	}

	if err := cfg.Validate(); err != nil {
		fatal := scanerr.Fatal(err.Error())
		fmt.Fprintln(os.Stderr, "symwalker: "+fatal.Error())
		return 1
	}

	log := logx.New(logx.Config{Verbose: cfg.Verbose, JSON: cfg.JSON, Output: os.Stderr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	result, err := scanner.Run(ctx, cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "symwalker: "+err.Error())
		return 1
	}

	if cfg.HasOutput {
		manifest, exportErrs := exporter.Run(ctx, cfg, result.Records)
		result.Errors = append(result.Errors, exportErrs...)
		_ = manifest
		for _, e := range exportErrs {
			if scanerr.IsFatal(e) {
				fmt.Fprintln(os.Stderr, "symwalker: "+e.Error())
				return 1
			}
		}
	}

	if cfg.JSON {
		if err := reporter.WriteJSON(os.Stdout, result.Records, result.Errors); err != nil {
			fmt.Fprintln(os.Stderr, "symwalker: "+err.Error())
			return 1
		}
	} else {
		reporter.WriteHuman(os.Stdout, result.Records, result.Errors, cfg.Verbose, config.NoColor())
	}

	return 0
}
