// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

package binaryfacts

import (
	"debug/macho"
	"fmt"
	"os"

	"github.com/19h/symwalker/internal/machocore"
	"github.com/19h/symwalker/internal/security"
	"github.com/19h/symwalker/internal/uuidfmt"
)

var machoArchNames = map[macho.Cpu]string{
	macho.CpuAmd64: "x86_64",
	macho.Cpu386:   "x86",
	macho.CpuArm:   "ARM",
	macho.CpuArm64: "ARM64",
	macho.CpuPpc:   "PowerPC",
	macho.CpuPpc64: "PowerPC",
}

const (
	mhExecute = 0x2
	mhDylib   = 0x6
	mhBundle  = 0x8
	mhObject  = 0x1
)

// ParseMachO builds a Facts record from a sniffed, already-thin Mach-O
// window (fat slices are extracted by the caller before this is
// invoked — see ParseAll). path carries the "#arch=<name>"
// suffix for fat slices. Mitigations are only computed when
// checkSecurity is true.
func ParseMachO(path string, data []byte, info os.FileInfo, checkSecurity bool) (*Facts, error) {
	mf, err := machocore.Parse(data)
	if err != nil {
		return nil, err
	}

	bits := 32
	if mf.Is64 {
		bits = 64
	}

	arch, ok := machoArchNames[mf.CPUType]
	if !ok {
		arch = fmt.Sprintf("Unknown(0x%x)", uint32(mf.CPUType))
	}

	f := &Facts{
		Path:   path,
		Size:   info.Size(),
		MTime:  info.ModTime().UTC(),
		Format: FormatMachO,
		Arch:   arch,
		Bits:   bits,
		Kind:   machoKind(mf),
	}

	f.DebugSections = machoDebugSections(mf)
	f.HasEmbeddedDebug = len(f.DebugSections) > 0
	f.IsStripped = !mf.HasSymtab || mf.NSyms == 0

	if mf.HasEntry {
		entry := mf.EntryOff
		f.EntryPoint = &entry
	} else if mf.HasUnixThread {
		entry := mf.UnixThreadPC
		f.EntryPoint = &entry
	}

	if mf.HasUUID {
		canon := uuidfmt.Canonical(mf.UUID)
		f.UUID = &canon
	}

	if checkSecurity {
		f.Mitigations = security.AnalyzeMachO(mf)
	}

	return f, nil
}

func machoKind(mf *machocore.File) Kind {
	switch uint32(mf.FileType) {
	case mhExecute:
		return KindExecutable
	case mhDylib, mhBundle:
		return KindLibrary
	case mhObject:
		return KindObject
	default:
		return KindOther
	}
}

// machoDebugSections enumerates sections within a __DWARF segment, by
// section name, e.g. __debug_info.
func machoDebugSections(mf *machocore.File) []string {
	var out []string
	for _, s := range mf.SectionsInSegment("__DWARF") {
		out = append(out, s.SectName)
	}
	return out
}
