// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

package binaryfacts

import (
	"debug/elf"
	"os"

	"github.com/19h/symwalker/internal/elfcore"
	"github.com/19h/symwalker/internal/security"
)

var elfArchNames = map[elf.Machine]string{
	elf.EM_X86_64:  "x86_64",
	elf.EM_386:     "x86",
	elf.EM_ARM:     "ARM",
	elf.EM_AARCH64: "ARM64",
	elf.EM_RISCV:   "RISC-V",
	elf.EM_PPC:     "PowerPC",
	elf.EM_PPC64:   "PowerPC",
	elf.EM_MIPS:    "MIPS",
	elf.EM_S390:    "S390",
}

// ParseELF builds a Facts record from an already-sniffed ELF window.
// info carries the file metadata (size, mtime) gathered before
// mapping. Mitigations are only computed when checkSecurity is true; the
// field is left at its zero value otherwise, so the record never
// needs to be touched again after it's returned.
func ParseELF(path string, data []byte, info os.FileInfo, checkSecurity bool) (*Facts, error) {
	ef, err := elfcore.Parse(data)
	if err != nil {
		return nil, err
	}

	bits := 64
	if ef.Class == elfcore.Class32 {
		bits = 32
	}

	arch, ok := elfArchNames[ef.Machine]
	if !ok {
		arch = unknownArch(uint32(ef.Machine))
	}

	f := &Facts{
		Path:   path,
		Size:   info.Size(),
		MTime:  info.ModTime().UTC(),
		Format: FormatELF,
		Arch:   arch,
		Bits:   bits,
		Kind:   elfKind(ef),
	}

	f.DebugSections = ef.DebugSections()
	f.HasEmbeddedDebug = len(f.DebugSections) > 0
	f.IsStripped = !ef.HasSymtab

	if ef.Entry != 0 {
		entry := ef.Entry
		f.EntryPoint = &entry
	}
	if interp, ok := ef.Interpreter(); ok {
		f.Interpreter = &interp
	}
	if bid, ok := ef.BuildID(); ok {
		f.BuildID = &bid
	}
	if link, ok := ef.GnuDebugLink(); ok {
		f.GnuDebugLink = &DebugLink{Name: link.Name, CRC: link.CRC}
	}

	if checkSecurity {
		f.Mitigations = security.AnalyzeELF(ef)
	}

	return f, nil
}

func elfKind(ef *elfcore.File) Kind {
	switch ef.Type {
	case elf.ET_EXEC:
		return KindExecutable
	case elf.ET_DYN:
		if ef.HasPTInterp() {
			return KindExecutable
		}
		return KindLibrary
	case elf.ET_REL:
		return KindObject
	default:
		return KindOther
	}
}

func unknownArch(code uint32) string {
	return "Unknown(0x" + hexUint(code) + ")"
}

func hexUint(v uint32) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}
