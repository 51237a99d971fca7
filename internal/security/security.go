// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package security derives exploit-mitigation flags from already-parsed
// ELF/Mach-O structures. It never re-touches the mapped
// file: every lookup here operates on the normalized tables elfcore and
// machocore already bounds-checked, and every dynamic-table lookup
// tolerates a stripped binary by reporting false rather than erroring.
package security

import (
	"debug/elf"
	"strings"

	"github.com/19h/symwalker/internal/elfcore"
	"github.com/19h/symwalker/internal/machocore"
)

// Mitigations are the booleans the Security Analyzer derives. For
// Mach-O, RELRO and Fortify are always false.
type Mitigations struct {
	PIE     bool
	NX      bool
	Canary  bool
	RELRO   bool
	Fortify bool
}

const (
	mhPIE                 = 0x00200000
	mhNoHeapExecution     = 0x01000000
	mhAllowStackExecution = 0x20000
)

// AnalyzeELF derives ELF mitigation flags.
func AnalyzeELF(ef *elfcore.File) Mitigations {
	var m Mitigations
	m.PIE = ef.Type == elf.ET_DYN && ef.HasPTInterp()

	if stack, ok := ef.GNUStack(); ok {
		m.NX = stack.Flags&elf.PF_X == 0
	}
	m.RELRO = ef.HasGNURelro()

	for _, sym := range ef.DynSyms {
		if sym.Name == "__stack_chk_fail" || sym.Name == "__stack_chk_guard" {
			m.Canary = true
		}
		if strings.HasSuffix(sym.Name, "_chk") {
			m.Fortify = true
		}
	}
	return m
}

// AnalyzeMachO derives Mach-O mitigation flags. NX is the
// conjunction of the heap and stack execution-prevention header flags.
func AnalyzeMachO(mf *machocore.File) Mitigations {
	var m Mitigations
	m.PIE = mf.Flags&mhPIE != 0

	heapNX := mf.Flags&mhNoHeapExecution != 0
	stackNX := mf.Flags&mhAllowStackExecution == 0
	m.NX = heapNX && stackNX

	for _, name := range mf.SymbolNames {
		if strings.Contains(name, "___stack_chk_fail") || strings.Contains(name, "___stack_chk_guard") {
			m.Canary = true
			break
		}
	}
	return m
}
