// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package elfcore is a bounds-checked, allocation-light ELF decoder.
// It reads just enough of the identification block, section headers,
// program headers, dynamic symbol table, and notes to support
// binaryfacts and security extraction. Every offset/size
// read from the file is checked against the window length before use;
// a truncated or inconsistent header yields an error, never a panic or
// an out-of-bounds read.
//
// Named constants (e_type, sh_type, p_type, e_machine values, …) come
// from the standard library's debug/elf package, used purely as a
// constant table — the structures themselves are decoded by hand so
// the same code serves both ELF32 and ELF64 from one mapped window.
package elfcore

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// Class distinguishes 32-bit and 64-bit ELF.
type Class int

const (
	Class32 Class = 32
	Class64 Class = 64
)

// Section is a normalized section-header entry, independent of class.
type Section struct {
	Name   string
	Type   elf.SectionType
	Flags  uint64
	Addr   uint64
	Offset uint64
	Size   uint64
}

// Segment is a normalized program-header entry, independent of class.
type Segment struct {
	Type   elf.ProgType
	Flags  elf.ProgFlag
	Offset uint64
	Vaddr  uint64
	Filesz uint64
}

// Symbol is a normalized symbol-table entry; only the fields the
// extraction contract needs are kept.
type Symbol struct {
	Name string
}

// File is the normalized result of parsing an ELF image.
type File struct {
	Class    Class
	Endian   binary.ByteOrder
	Type     elf.Type
	Machine  elf.Machine
	Entry    uint64
	Sections []Section
	Segments []Segment

	// DynSyms holds .dynsym names; empty if the section is absent or
	// the binary is statically linked without one.
	DynSyms []Symbol

	// HasSymtab records whether a .symtab section was present (used
	// for is_stripped — presence, not section removal, is what counts).
	HasSymtab bool

	raw []byte
}

// Parse decodes data as an ELF image. data must remain valid for the
// lifetime of the returned File (it keeps slices into it); callers
// release the Mapper window only after finishing with the File.
func Parse(data []byte) (*File, error) {
	if len(data) < 20 {
		return nil, fmt.Errorf("elfcore: file too small for ELF identification")
	}
	if data[0] != 0x7f || data[1] != 'E' || data[2] != 'L' || data[3] != 'F' {
		return nil, fmt.Errorf("elfcore: bad magic")
	}

	var class Class
	switch data[4] {
	case 1:
		class = Class32
	case 2:
		class = Class64
	default:
		return nil, fmt.Errorf("elfcore: unknown EI_CLASS %d", data[4])
	}

	var endian binary.ByteOrder
	switch data[5] {
	case 1:
		endian = binary.LittleEndian
	case 2:
		endian = binary.BigEndian
	default:
		return nil, fmt.Errorf("elfcore: unknown EI_DATA %d", data[5])
	}

	f := &File{Class: class, Endian: endian, raw: data}

	var (
		phoff, shoff           uint64
		phentsize, phnum       uint16
		shentsize, shnum       uint16
		shstrndx               uint16
		entry                  uint64
		etype                  uint16
		emachine               uint16
	)

	if class == Class64 {
		var h elf64Header
		if err := readStruct(data, 16, endian, &h); err != nil {
			return nil, fmt.Errorf("elfcore: truncated ELF64 header: %w", err)
		}
		etype, emachine, entry = h.Type, h.Machine, h.Entry
		phoff, shoff = h.Phoff, h.Shoff
		phentsize, phnum = h.Phentsize, h.Phnum
		shentsize, shnum = h.Shentsize, h.Shnum
		shstrndx = h.Shstrndx
	} else {
		var h elf32Header
		if err := readStruct(data, 16, endian, &h); err != nil {
			return nil, fmt.Errorf("elfcore: truncated ELF32 header: %w", err)
		}
		etype, emachine, entry = h.Type, h.Machine, uint64(h.Entry)
		phoff, shoff = uint64(h.Phoff), uint64(h.Shoff)
		phentsize, phnum = h.Phentsize, h.Phnum
		shentsize, shnum = h.Shentsize, h.Shnum
		shstrndx = h.Shstrndx
	}

	f.Type = elf.Type(etype)
	f.Machine = elf.Machine(emachine)
	f.Entry = entry

	rawSections, err := parseSectionHeaders(data, class, endian, shoff, shentsize, shnum)
	if err != nil {
		return nil, err
	}

	var shstrtab []byte
	if int(shstrndx) < len(rawSections) {
		shstrtab, _ = sectionContent(data, rawSections[shstrndx])
	}

	f.Sections = make([]Section, len(rawSections))
	for i, rs := range rawSections {
		name := ""
		if shstrtab != nil {
			name = cstr(shstrtab, rs.nameOff)
		}
		f.Sections[i] = Section{
			Name:   name,
			Type:   elf.SectionType(rs.shType),
			Flags:  rs.flags,
			Addr:   rs.addr,
			Offset: rs.offset,
			Size:   rs.size,
		}
		if name == ".symtab" {
			f.HasSymtab = true
		}
	}

	rawSegments, err := parseProgramHeaders(data, class, endian, phoff, phentsize, phnum)
	if err != nil {
		return nil, err
	}
	f.Segments = make([]Segment, len(rawSegments))
	for i, rp := range rawSegments {
		f.Segments[i] = Segment{
			Type:   elf.ProgType(rp.pType),
			Flags:  elf.ProgFlag(rp.flags),
			Offset: rp.offset,
			Vaddr:  rp.vaddr,
			Filesz: rp.filesz,
		}
	}

	f.DynSyms = parseDynSyms(data, class, endian, f.Sections)

	return f, nil
}

// SectionByName returns the first section with the given name.
func (f *File) SectionByName(name string) (Section, bool) {
	for _, s := range f.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// SectionContent returns the raw bytes backing a section, bounds-checked.
func (f *File) SectionContent(s Section) ([]byte, error) {
	return sliceAt(f.raw, s.Offset, s.Size)
}

// SegmentContent returns the raw bytes backing a segment, bounds-checked.
func (f *File) SegmentContent(s Segment) ([]byte, error) {
	return sliceAt(f.raw, s.Offset, s.Filesz)
}

// --- raw on-disk layouts, decoded by hand per class ---

type elf32Header struct {
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type elf64Header struct {
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type elf32Section struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	Addralign uint32
	Entsize   uint32
}

type elf64Section struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

type elf32Program struct {
	Type   uint32
	Offset uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

type elf64Program struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

type elf32Sym struct {
	Name  uint32
	Value uint32
	Size  uint32
	Info  uint8
	Other uint8
	Shndx uint16
}

type elf64Sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

type rawSection struct {
	nameOff uint32
	shType  uint32
	flags   uint64
	addr    uint64
	offset  uint64
	size    uint64
}

type rawProgram struct {
	pType  uint32
	flags  uint32
	offset uint64
	vaddr  uint64
	filesz uint64
}

func parseSectionHeaders(data []byte, class Class, endian binary.ByteOrder, off uint64, entsize, num uint16) ([]rawSection, error) {
	if num == 0 {
		return nil, nil
	}
	out := make([]rawSection, 0, num)
	for i := uint16(0); i < num; i++ {
		entOff := off + uint64(i)*uint64(entsize)
		if class == Class64 {
			var s elf64Section
			if err := readStruct(data, entOff, endian, &s); err != nil {
				return nil, fmt.Errorf("elfcore: truncated section header %d: %w", i, err)
			}
			out = append(out, rawSection{s.Name, s.Type, s.Flags, s.Addr, s.Offset, s.Size})
		} else {
			var s elf32Section
			if err := readStruct(data, entOff, endian, &s); err != nil {
				return nil, fmt.Errorf("elfcore: truncated section header %d: %w", i, err)
			}
			out = append(out, rawSection{s.Name, s.Type, uint64(s.Flags), uint64(s.Addr), uint64(s.Offset), uint64(s.Size)})
		}
	}
	return out, nil
}

func parseProgramHeaders(data []byte, class Class, endian binary.ByteOrder, off uint64, entsize, num uint16) ([]rawProgram, error) {
	if num == 0 {
		return nil, nil
	}
	out := make([]rawProgram, 0, num)
	for i := uint16(0); i < num; i++ {
		entOff := off + uint64(i)*uint64(entsize)
		if class == Class64 {
			var p elf64Program
			if err := readStruct(data, entOff, endian, &p); err != nil {
				return nil, fmt.Errorf("elfcore: truncated program header %d: %w", i, err)
			}
			out = append(out, rawProgram{p.Type, p.Flags, p.Offset, p.Vaddr, p.Filesz})
		} else {
			var p elf32Program
			if err := readStruct(data, entOff, endian, &p); err != nil {
				return nil, fmt.Errorf("elfcore: truncated program header %d: %w", i, err)
			}
			out = append(out, rawProgram{p.Type, p.Flags, uint64(p.Offset), uint64(p.Vaddr), uint64(p.Filesz)})
		}
	}
	return out, nil
}

func parseDynSyms(data []byte, class Class, endian binary.ByteOrder, sections []Section) []Symbol {
	var dynsym, dynstr Section
	var haveSym, haveStr bool
	for _, s := range sections {
		switch {
		case s.Name == ".dynsym":
			dynsym, haveSym = s, true
		case s.Name == ".dynstr":
			dynstr, haveStr = s, true
		}
	}
	if !haveSym || !haveStr {
		return nil
	}

	strtab, err := sliceAt(data, dynstr.Offset, dynstr.Size)
	if err != nil {
		return nil
	}

	entsize := uint64(24)
	if class == Class32 {
		entsize = 16
	}
	if entsize == 0 || dynsym.Size == 0 {
		return nil
	}
	count := dynsym.Size / entsize

	syms := make([]Symbol, 0, count)
	for i := uint64(0); i < count; i++ {
		entOff := dynsym.Offset + i*entsize
		var nameOff uint32
		if class == Class64 {
			var s elf64Sym
			if readStruct(data, entOff, endian, &s) != nil {
				break
			}
			nameOff = s.Name
		} else {
			var s elf32Sym
			if readStruct(data, entOff, endian, &s) != nil {
				break
			}
			nameOff = s.Name
		}
		syms = append(syms, Symbol{Name: cstr(strtab, nameOff)})
	}
	return syms
}

func sectionContent(data []byte, s rawSection) ([]byte, error) {
	return sliceAt(data, s.offset, s.size)
}

func sliceAt(data []byte, offset, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	if offset > uint64(len(data)) {
		return nil, fmt.Errorf("elfcore: offset 0x%x beyond file", offset)
	}
	end := offset + size
	if end < offset || end > uint64(len(data)) {
		return nil, fmt.Errorf("elfcore: range [0x%x,0x%x) beyond file", offset, end)
	}
	return data[offset:end], nil
}

func readStruct(data []byte, offset uint64, endian binary.ByteOrder, v interface{}) error {
	size := uint64(binary.Size(v))
	chunk, err := sliceAt(data, offset, size)
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(chunk), endian, v)
}

// cstr reads a NUL-terminated string starting at off within buf. An
// out-of-range offset yields "".
func cstr(buf []byte, off uint32) string {
	if int(off) >= len(buf) {
		return ""
	}
	rest := buf[off:]
	if idx := bytes.IndexByte(rest, 0); idx >= 0 {
		return string(rest[:idx])
	}
	return string(rest)
}
