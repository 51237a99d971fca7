// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package binaryfacts produces the normalized, immutable BinaryFacts
// record from a mapped byte window. It implements the two
// monomorphic parse functions (ELF, Mach-O) behind one tagged-variant
// Format field: downstream consumers branch on Format explicitly only
// inside the Resolver, so a virtual-dispatch table across the whole
// pipeline buys nothing.
package binaryfacts

import (
	"time"

	"github.com/19h/symwalker/internal/security"
)

// Format tags which family a binary belongs to.
type Format string

const (
	FormatELF   Format = "ELF"
	FormatMachO Format = "MachO"
)

// Kind classifies what a binary is for.
type Kind string

const (
	KindExecutable Kind = "Executable"
	KindLibrary    Kind = "Library"
	KindObject     Kind = "Object"
	KindOther      Kind = "Other"
)

// DebugLink is the parsed .gnu_debuglink payload (ELF only).
type DebugLink struct {
	Name string
	CRC  uint32
}

// Mitigations are the security-mitigation booleans derived by the
// Security Analyzer. For Mach-O, RELRO and Fortify are always false.
type Mitigations = security.Mitigations

// Facts is the normalized, per-file record produced by a parser. It is
// created once and never mutated after return.
type Facts struct {
	Path  string
	Size  int64
	MTime time.Time

	Format Format
	Arch   string
	Bits   int
	Kind   Kind

	IsStripped        bool
	HasEmbeddedDebug  bool
	DebugSections     []string

	EntryPoint    *uint64
	Interpreter   *string

	// ELF-only.
	BuildID       *string
	GnuDebugLink  *DebugLink

	// Mach-O-only.
	UUID *string

	Mitigations Mitigations
}
