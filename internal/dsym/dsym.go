// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package dsym locates and verifies macOS dSYM bundles for a Mach-O
// binary. A bundle is a directory named "*.dSYM" holding the inner
// DWARF file at Contents/Resources/DWARF/<name>; a candidate only
// counts as a match once its inner file's LC_UUID equals the primary
// binary's UUID.
package dsym

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/19h/symwalker/internal/machocore"
	"github.com/19h/symwalker/internal/uuidfmt"
)

// Candidates returns every "*.dSYM" directory worth checking for
// binaryPath, in a fixed search order: adjacent, then ascending two
// levels (for .app/Contents/MacOS bundles), then — only when extended
// is true — Xcode DerivedData and Archives globs. Within the extended
// glob groups, matches are enumerated in lexicographic order.
func Candidates(binaryPath string, extended bool) []string {
	var out []string

	adjacent := binaryPath + ".dSYM"
	if isDir(adjacent) {
		out = append(out, adjacent)
	}

	dir := filepath.Dir(binaryPath)
	ascended := filepath.Join(dir, "..", "..")
	if matches, err := filepath.Glob(filepath.Join(ascended, "*.dSYM")); err == nil {
		sort.Strings(matches)
		out = append(out, matches...)
	}

	if extended {
		home, err := os.UserHomeDir()
		if err == nil {
			derived := filepath.Join(home, "Library", "Developer", "Xcode", "DerivedData",
				"*", "Build", "Products", "{Debug,Release}*", "**", "*.dSYM")
			out = append(out, globBraced(derived)...)

			archives := filepath.Join(home, "Library", "Developer", "Xcode", "Archives",
				"*", "dSYMs", "*.dSYM")
			if matches, err := filepath.Glob(archives); err == nil {
				sort.Strings(matches)
				out = append(out, matches...)
			}
		}
	}

	return out
}

// globBraced expands the single "{Debug,Release}*" or "**" shell
// conveniences filepath.Glob doesn't support natively, since Xcode's
// DerivedData layout needs both.
func globBraced(pattern string) []string {
	const debugRelease = "{Debug,Release}*"
	if !strings.Contains(pattern, debugRelease) {
		matches, _ := filepath.Glob(pattern)
		sort.Strings(matches)
		return matches
	}
	before, after, _ := strings.Cut(pattern, debugRelease)
	var out []string
	for _, variant := range []string{"Debug*", "Release*"} {
		expanded := before + variant + after
		matches := globDoubleStar(expanded)
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out
}

// globDoubleStar expands a single "**" segment into a recursive walk,
// matching everything filepath.Glob's single-level "*" would miss.
func globDoubleStar(pattern string) []string {
	idx := strings.Index(pattern, string(filepath.Separator)+"**"+string(filepath.Separator))
	if idx < 0 {
		matches, _ := filepath.Glob(pattern)
		return matches
	}
	root := pattern[:idx]
	suffix := pattern[idx+len("/**"):]

	rootMatches, _ := filepath.Glob(root)
	var out []string
	for _, r := range rootMatches {
		_ = filepath.WalkDir(r, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			matches, _ := filepath.Glob(path + suffix)
			out = append(out, matches...)
			return nil
		})
	}
	return out
}

// InnerDWARFPath returns the sole regular file beneath
// <bundle>/Contents/Resources/DWARF.
func InnerDWARFPath(bundle string) (string, error) {
	dwarfDir := filepath.Join(bundle, "Contents", "Resources", "DWARF")
	entries, err := os.ReadDir(dwarfDir)
	if err != nil {
		return "", err
	}
	var found string
	for _, e := range entries {
		if e.Type().IsRegular() {
			if found != "" {
				return "", fmt.Errorf("dsym: %s has more than one DWARF file", dwarfDir)
			}
			found = e.Name()
		}
	}
	if found == "" {
		return "", fmt.Errorf("dsym: %s has no regular file", dwarfDir)
	}
	return filepath.Join(dwarfDir, found), nil
}

// VerifyUUID reports whether bundle's inner DWARF file carries the
// same LC_UUID as wantUUID (already canonical-uppercase form). A
// filesystem or parse failure is treated as "does not match" — the
// resolver continues with the next candidate; any filesystem error
// other than "not found" is recorded and resolution continues.
func VerifyUUID(bundle, wantUUID string) (bool, error) {
	inner, err := InnerDWARFPath(bundle)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(inner)
	if err != nil {
		return false, err
	}
	mf, err := machocore.Parse(data)
	if err != nil {
		return false, err
	}
	if !mf.HasUUID {
		return false, nil
	}
	return uuidfmt.Canonical(mf.UUID) == wantUUID, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
