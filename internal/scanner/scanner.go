// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package scanner walks a directory tree, feeds each candidate file
// through Mapper → Sniffer → Parsers → Security Analyzer → Resolver,
// and assembles the resulting stream of records. A bounded worker pool
// processes files concurrently; the result sink is append-only and
// serializes only at drain time.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"

	"github.com/19h/symwalker/internal/binaryfacts"
	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/debuginfod"
	"github.com/19h/symwalker/internal/mapper"
	"github.com/19h/symwalker/internal/resolver"
	"github.com/19h/symwalker/internal/scanerr"
	"github.com/19h/symwalker/internal/sniffer"
	"github.com/rs/zerolog"
)

// Record pairs the BinaryFacts and SymbolLocation the Resolver
// produces for one file or fat-archive slice.
type Record struct {
	Facts    *binaryfacts.Facts
	Location resolver.SymbolLocation
}

// Result is the full outcome of one scan: the filtered record stream
// plus every non-fatal structured diagnostic collected along the way.
type Result struct {
	Records []Record
	Errors  []*scanerr.Error
}

// Run walks cfg.Directory and returns the filtered, assembled result
// stream. A Fatal error (unreadable root) is returned directly rather
// than folded into Result.Errors, so the caller can map it to a
// distinct exit code.
func Run(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Result, error) {
	rootInfo, err := os.Stat(cfg.Directory)
	if err != nil {
		return nil, scanerr.Fatal("cannot stat scan root: " + err.Error())
	}
	if !rootInfo.IsDir() {
		return nil, scanerr.Fatal(cfg.Directory + " is not a directory")
	}

	paths := make(chan string, 256)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var records []Record
	var diagnostics []*scanerr.Error

	workers := cfg.Parallelism
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 16 {
			workers = 16
		}
		if workers < 1 {
			workers = 1
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := debuginfod.New(cfg.ResolveDebuginfodServers())
			for path := range paths {
				select {
				case <-ctx.Done():
					continue
				default:
				}
				recs, errs := processFile(ctx, path, cfg, client)
				if len(recs) == 0 && len(errs) == 0 {
					continue
				}
				mu.Lock()
				records = append(records, recs...)
				diagnostics = append(diagnostics, errs...)
				mu.Unlock()
			}
		}()
	}

	walkErrs := walk(ctx, cfg, log, paths)
	close(paths)
	wg.Wait()

	diagnostics = append(diagnostics, walkErrs...)

	filtered := applyFilters(records, cfg)
	return &Result{Records: filtered, Errors: diagnostics}, nil
}

// visitKey identifies a directory by device+inode, used to detect
// symlink cycles when --follow-symlinks is set.
type visitKey struct {
	dev, ino uint64
}

// deviceInode stats dir and returns its device+inode pair. walk
// consults it for every directory it enters, for cycle detection; a stat
// failure here is reported as "not comparable" rather than an
// error, since the caller's own os.ReadDir call surfaces the real
// failure a moment later.
func deviceInode(dir string) (visitKey, bool) {
	info, err := os.Stat(dir)
	if err != nil {
		return visitKey{}, false
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return visitKey{}, false
	}
	return visitKey{dev: uint64(st.Dev), ino: uint64(st.Ino)}, true
}

// walk performs the bounded-depth, cycle-safe directory descent and
// submits each candidate regular file to paths. Descent counting
// starts at 0 for the root.
func walk(ctx context.Context, cfg config.Config, log zerolog.Logger, paths chan<- string) []*scanerr.Error {
	var errs []*scanerr.Error
	visited := make(map[visitKey]bool)

	var recurse func(dir string, depth int)
	recurse = func(dir string, depth int) {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if cfg.HasMaxDepth && depth > cfg.MaxDepth {
			return
		}

		if key, ok := deviceInode(dir); ok {
			if visited[key] {
				return
			}
			visited[key] = true
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("skipping unreadable directory")
			errs = append(errs, scanerr.Unreadable(dir, err))
			return
		}

		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			mode := entry.Type()

			if mode&os.ModeSymlink != 0 {
				if !cfg.FollowSymlinks {
					continue
				}
				info, err := os.Stat(full)
				if err != nil {
					continue
				}
				if info.IsDir() {
					recurse(full, depth+1)
				} else if info.Mode().IsRegular() {
					paths <- full
				}
				continue
			}

			if mode.IsDir() {
				recurse(full, depth+1)
				continue
			}

			if mode.IsRegular() {
				paths <- full
			}
		}
	}

	recurse(cfg.Directory, 0)
	return errs
}

// processFile runs one candidate file through the full per-binary
// pipeline, producing zero or more Records (one per fat-archive slice)
// and zero or more diagnostics.
func processFile(ctx context.Context, path string, cfg config.Config, client *debuginfod.Client) ([]Record, []*scanerr.Error) {
	m, err := mapper.Open(path)
	if err != nil {
		return nil, []*scanerr.Error{scanerr.Unreadable(path, err)}
	}

	data := m.Bytes()
	if sniffer.Sniff(data) == sniffer.Unknown {
		m.Close()
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		m.Close()
		return nil, []*scanerr.Error{scanerr.Unreadable(path, err)}
	}

	allFacts, err := binaryfacts.ParseAll(path, data, info, cfg.Security)
	m.Close()
	if err != nil {
		return nil, []*scanerr.Error{scanerr.Malformed(path, err.Error())}
	}

	var records []Record
	var errs []*scanerr.Error

	for _, facts := range allFacts {
		var loc resolver.SymbolLocation
		var resolveErrs []*scanerr.Error
		switch facts.Format {
		case binaryfacts.FormatELF:
			loc, resolveErrs = resolver.ResolveELF(ctx, facts, cfg, client)
		case binaryfacts.FormatMachO:
			loc, resolveErrs = resolver.ResolveMachO(facts, cfg)
		}
		errs = append(errs, resolveErrs...)

		records = append(records, Record{Facts: facts, Location: loc})
	}

	return records, errs
}

// applyFilters implements the post-parse filtering:
// --local-only, --remote-only, --show-stripped. Without
// --show-stripped, a fully-unresolved stripped binary is omitted.
func applyFilters(records []Record, cfg config.Config) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		loc := r.Location

		hasLocal := loc.Embedded || loc.LocalPath != nil
		hasRemote := loc.RemoteURL != nil

		if cfg.LocalOnly && !hasLocal {
			continue
		}
		if cfg.RemoteOnly && !hasRemote {
			continue
		}
		if !cfg.ShowStripped && r.Facts.IsStripped && !hasLocal && !hasRemote {
			continue
		}

		out = append(out, r)
	}
	return out
}
