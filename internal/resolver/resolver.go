// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package resolver orchestrates the four symbol-discovery channels —
// embedded sections, distribution filesystem layouts, debuginfod, and
// dSYM bundles — and produces one SymbolLocation per binary. It
// operates purely on an already-built, immutable Facts record and the
// filesystem: the binary's memory map is released before resolution
// starts.
package resolver

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"

	"github.com/19h/symwalker/internal/binaryfacts"
	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/debuginfod"
	"github.com/19h/symwalker/internal/dsym"
	"github.com/19h/symwalker/internal/scanerr"
)

// SymbolLocation is the Resolver's output per binary.
type SymbolLocation struct {
	Embedded       bool
	LocalPath      *string
	RemoteURL      *string
	DownloadedPath *string
	CheckedRemote  bool
}

// debugRoots are, in probe order, the distribution conventions for a
// build-id-keyed debug file.
var debugRoots = []struct {
	prefix string
	suffix string
}{
	{"/usr/lib/debug/.build-id/", ".debug"},
	{"/usr/lib/debug/.build-id/", ""},
	{"/lib/debug/.build-id/", ".debug"},
}

// ResolveELF implements the ELF resolution order: embedded debug,
// build-id path, gnu_debuglink, adjacent fallback, then debuginfod.
// Embedded debug short-circuits the remaining channels by default —
// the resolver does not probe further once embedded debug is found,
// since a binary that already carries its own DWARF needs no external
// artifact. The adjacent fallback has no CRC to check against; if a
// gnu_debuglink was present but rejected (missing or CRC mismatch),
// its target filename is excluded from the fallback too, so a failed
// CRC check can't be silently recovered by the unverified path.
func ResolveELF(ctx context.Context, facts *binaryfacts.Facts, cfg config.Config, client *debuginfod.Client) (SymbolLocation, []*scanerr.Error) {
	var loc SymbolLocation
	var errs []*scanerr.Error

	if facts.HasEmbeddedDebug {
		loc.Embedded = true
		return loc, errs
	}

	if facts.BuildID != nil {
		if path, err := probeBuildIDPaths(*facts.BuildID); err != nil {
			errs = append(errs, scanerr.Unreadable(facts.Path, err))
		} else if path != "" {
			loc.LocalPath = &path
			return loc, errs
		}
	}

	var rejectedDebugLink string
	if facts.GnuDebugLink != nil {
		path, err := searchDebugLink(facts.Path, *facts.GnuDebugLink)
		if err != nil {
			errs = append(errs, scanerr.Unreadable(facts.Path, err))
		} else if path != "" {
			loc.LocalPath = &path
			return loc, errs
		} else {
			rejectedDebugLink = facts.GnuDebugLink.Name
		}
	}

	if path, ok := adjacentFallback(facts.Path, rejectedDebugLink); ok {
		loc.LocalPath = &path
		return loc, errs
	}

	if cfg.CheckRemote && facts.BuildID != nil {
		loc.CheckedRemote = true
		hit, probeErrs := client.Probe(ctx, *facts.BuildID)
		for _, pe := range probeErrs {
			errs = append(errs, scanerr.NetworkTransient(pe.URL, pe.Cause.Error()))
		}
		if hit != nil {
			loc.RemoteURL = &hit.URL
		}
	}

	return loc, errs
}

// probeBuildIDPaths checks the three distribution-convention
// locations keyed by build-id, in order, returning the first that
// exists as a regular file.
func probeBuildIDPaths(buildID string) (string, error) {
	if len(buildID) < 2 {
		return "", nil
	}
	aa, rest := buildID[:2], buildID[2:]
	for _, root := range debugRoots {
		candidate := filepath.Join(root.prefix, aa, rest+root.suffix)
		ok, err := isRegularFile(candidate)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
	}
	return "", nil
}

// searchDebugLink checks the three gnu_debuglink-relative locations,
// in order, verifying CRC32 against each candidate before accepting
// it.
func searchDebugLink(binaryPath string, link binaryfacts.DebugLink) (string, error) {
	dir := filepath.Dir(binaryPath)
	candidates := []string{
		filepath.Join(dir, link.Name),
		filepath.Join(dir, ".debug", link.Name),
		filepath.Join("/usr/lib/debug", dir, link.Name),
	}
	for _, candidate := range candidates {
		ok, err := isRegularFile(candidate)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		matches, err := crc32Matches(candidate, link.CRC)
		if err != nil {
			return "", err
		}
		if matches {
			return candidate, nil
		}
	}
	return "", nil
}

// adjacentFallback checks "<binary>.debug" and
// "<dir>/.debug/<basename>", with no CRC to verify against. When
// rejectedDebugLink is non-empty, it names a gnu_debuglink target that
// searchDebugLink already tried and rejected (missing or CRC
// mismatch); any candidate sharing that filename is skipped here too,
// so a CRC failure can't be silently recovered by the unverified
// fallback.
func adjacentFallback(binaryPath, rejectedDebugLink string) (string, bool) {
	dir := filepath.Dir(binaryPath)
	base := filepath.Base(binaryPath)
	candidates := []string{
		binaryPath + ".debug",
		filepath.Join(dir, ".debug", base),
	}
	for _, candidate := range candidates {
		if rejectedDebugLink != "" && filepath.Base(candidate) == rejectedDebugLink {
			continue
		}
		if ok, err := isRegularFile(candidate); err == nil && ok {
			return candidate, true
		}
	}
	return "", false
}

// crc32Matches computes the IEEE (Ethernet) CRC32 of path's contents
// and compares it to want. This is the flavor GNU binutils' own
// gnu_debuglink implementation uses (see DESIGN.md).
func crc32Matches(path string, want uint32) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := crc32.NewIEEE()
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return h.Sum32() == want, nil
}

func isRegularFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("resolver: stat %s: %w", path, err)
	}
	return info.Mode().IsRegular(), nil
}

// ResolveMachO implements the Mach-O resolution order: embedded
// __DWARF detection, then a UUID-matched dSYM search. There is no
// remote channel for Mach-O.
func ResolveMachO(facts *binaryfacts.Facts, cfg config.Config) (SymbolLocation, []*scanerr.Error) {
	var loc SymbolLocation
	var errs []*scanerr.Error

	if facts.HasEmbeddedDebug {
		loc.Embedded = true
		return loc, errs
	}

	if facts.UUID == nil {
		return loc, errs
	}

	for _, bundle := range dsym.Candidates(strings.TrimSuffix(facts.Path, archSuffix(facts.Path)), cfg.CheckDsym) {
		matched, err := dsym.VerifyUUID(bundle, *facts.UUID)
		if err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, scanerr.Unreadable(bundle, err))
			}
			continue
		}
		if matched {
			loc.LocalPath = &bundle
			return loc, errs
		}
	}

	return loc, errs
}

// archSuffix returns a trailing "#arch=<name>" fat-slice marker (or ""
// when there is none) so the caller can strip it and compute dSYM
// candidate paths against the real file on disk, not the synthetic
// per-slice path.
func archSuffix(path string) string {
	if idx := strings.LastIndex(path, "#arch="); idx >= 0 {
		return path[idx:]
	}
	return ""
}
