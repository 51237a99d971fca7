// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package machocore is a bounds-checked Mach-O decoder in the same
// style as internal/elfcore: hand-rolled struct layouts decoded with
// encoding/binary against a mapped window, never stepping past the
// declared ncmds/sizeofcmds bounds. Load-command numbers are defined
// locally; the standard library's debug/macho package supplies only the
// Cpu and Type types.
package machocore

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"fmt"

	"github.com/19h/symwalker/internal/sniffer"
)

// Section is a normalized Mach-O section entry.
type Section struct {
	SegName string
	SectName string
	Addr    uint64
	Size    uint64
	Offset  uint32
}

// File is the normalized result of parsing one Mach-O thin slice.
type File struct {
	Is64     bool
	Endian   binary.ByteOrder
	CPUType  macho.Cpu
	FileType macho.Type
	Flags    uint32

	Sections []Section

	// UUID holds the raw 16 bytes from LC_UUID, if present.
	UUID    [16]byte
	HasUUID bool

	// Symtab fields from LC_SYMTAB, if present.
	HasSymtab bool
	NSyms     uint32

	// EntryOff is the raw entryoff field of LC_MAIN, if present.
	EntryOff    uint64
	HasEntry    bool
	// UnixThreadPC is a fallback entry point read from LC_UNIXTHREAD's
	// register state, if LC_MAIN is absent.
	UnixThreadPC uint64
	HasUnixThread bool

	// SymbolNames holds every exported/local symbol-table string, used
	// by the security analyzer to spot __stack_chk_fail etc.
	SymbolNames []string

	raw []byte
}

const (
	lcSegment    = 0x1
	lcSymtab     = 0x2
	lcDysymtab   = 0xb
	lcUnixthread = 0x5
	lcUUID       = 0x1b
	lcSegment64  = 0x19
	lcMain       = 0x80000028
	lcRequiredBit = 0x80000000
)

// Parse decodes data as a single-architecture ("thin") Mach-O image.
// data must remain valid for the lifetime of the returned File.
func Parse(data []byte) (*File, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("machocore: file too small")
	}
	if sniffer.Sniff(data) != sniffer.MachOThin {
		return nil, fmt.Errorf("machocore: not a thin Mach-O image")
	}

	is64 := sniffer.ThinIs64(data)
	endian := binary.ByteOrder(binary.LittleEndian)
	if sniffer.ThinIsBigEndian(data) {
		endian = binary.BigEndian
	}

	f := &File{Is64: is64, Endian: endian, raw: data}

	var ncmds uint32
	var sizeofcmds uint32
	var cmdsStart uint64

	if is64 {
		var h header64
		if err := readStruct(data, 0, endian, &h); err != nil {
			return nil, fmt.Errorf("machocore: truncated header: %w", err)
		}
		f.CPUType = macho.Cpu(h.CPUType)
		f.FileType = macho.Type(h.FileType)
		f.Flags = h.Flags
		ncmds, sizeofcmds = h.NCmds, h.SizeOfCmds
		cmdsStart = 32
	} else {
		var h header32
		if err := readStruct(data, 0, endian, &h); err != nil {
			return nil, fmt.Errorf("machocore: truncated header: %w", err)
		}
		f.CPUType = macho.Cpu(h.CPUType)
		f.FileType = macho.Type(h.FileType)
		f.Flags = h.Flags
		ncmds, sizeofcmds = h.NCmds, h.SizeOfCmds
		cmdsStart = 28
	}

	if err := f.parseLoadCommands(cmdsStart, ncmds, sizeofcmds); err != nil {
		return nil, err
	}

	return f, nil
}

type header32 struct {
	Magic      uint32
	CPUType    uint32
	CPUSubtype uint32
	FileType   uint32
	NCmds      uint32
	SizeOfCmds uint32
	Flags      uint32
}

type header64 struct {
	Magic      uint32
	CPUType    uint32
	CPUSubtype uint32
	FileType   uint32
	NCmds      uint32
	SizeOfCmds uint32
	Flags      uint32
	Reserved   uint32
}

type loadCommandHeader struct {
	Cmd     uint32
	CmdSize uint32
}

type segmentCommand32 struct {
	SegName  [16]byte
	VMAddr   uint32
	VMSize   uint32
	FileOff  uint32
	FileSize uint32
	MaxProt  int32
	InitProt int32
	NSects   uint32
	Flags    uint32
}

type segmentCommand64 struct {
	SegName  [16]byte
	VMAddr   uint64
	VMSize   uint64
	FileOff  uint64
	FileSize uint64
	MaxProt  int32
	InitProt int32
	NSects   uint32
	Flags    uint32
}

type section32 struct {
	SectName  [16]byte
	SegName   [16]byte
	Addr      uint32
	Size      uint32
	Offset    uint32
	Align     uint32
	Reloff    uint32
	Nreloc    uint32
	Flags     uint32
	Reserved1 uint32
	Reserved2 uint32
}

type section64 struct {
	SectName  [16]byte
	SegName   [16]byte
	Addr      uint64
	Size      uint64
	Offset    uint32
	Align     uint32
	Reloff    uint32
	Nreloc    uint32
	Flags     uint32
	Reserved1 uint32
	Reserved2 uint32
	Reserved3 uint32
}

type symtabCommand struct {
	SymOff  uint32
	NSyms   uint32
	StrOff  uint32
	StrSize uint32
}

type uuidCommand struct {
	UUID [16]byte
}

type entryPointCommand struct {
	EntryOff uint64
	StackSize uint64
}

// parseLoadCommands walks the load-command table, refusing to step past
// the declared ncmds/sizeofcmds bounds.
func (f *File) parseLoadCommands(start uint64, ncmds, sizeofcmds uint32) error {
	end := start + uint64(sizeofcmds)
	if end > uint64(len(f.raw)) {
		return fmt.Errorf("machocore: sizeofcmds 0x%x beyond file", sizeofcmds)
	}

	offset := start
	for i := uint32(0); i < ncmds; i++ {
		if offset+8 > end {
			return fmt.Errorf("machocore: load command %d beyond declared bounds", i)
		}
		var lc loadCommandHeader
		if err := readStruct(f.raw, offset, f.Endian, &lc); err != nil {
			return fmt.Errorf("machocore: truncated load command %d: %w", i, err)
		}
		if lc.CmdSize < 8 || offset+uint64(lc.CmdSize) > end {
			return fmt.Errorf("machocore: load command %d has invalid size", i)
		}

		if err := f.parseOneCommand(lc.Cmd, offset, lc.CmdSize); err != nil {
			return err
		}

		offset += uint64(lc.CmdSize)
	}
	return nil
}

func (f *File) parseOneCommand(cmd uint32, offset uint64, size uint32) error {
	switch cmd {
	case lcSegment:
		return f.parseSegment32(offset, size)
	case lcSegment64:
		return f.parseSegment64(offset, size)
	case lcSymtab:
		var s symtabCommand
		if err := readStruct(f.raw, offset+8, f.Endian, &s); err != nil {
			return nil
		}
		f.HasSymtab = true
		f.NSyms = s.NSyms
		f.readSymbolNames(s)
	case lcUUID:
		var u uuidCommand
		if err := readStruct(f.raw, offset+8, f.Endian, &u); err != nil {
			return nil
		}
		f.UUID = u.UUID
		f.HasUUID = true
	case lcMain:
		var e entryPointCommand
		if err := readStruct(f.raw, offset+8, f.Endian, &e); err != nil {
			return nil
		}
		f.EntryOff = e.EntryOff
		f.HasEntry = true
	case lcUnixthread:
		// The PC is architecture-specific within the thread-state
		// payload; record the raw flavor value as a fallback marker
		// when LC_MAIN is absent, matching the conservative behavior
		// of not fully decoding per-arch register layouts.
		if offset+16 <= uint64(len(f.raw)) {
			flavor := f.Endian.Uint32(f.raw[offset+8 : offset+12])
			f.UnixThreadPC = uint64(flavor)
			f.HasUnixThread = true
		}
	}
	return nil
}

func (f *File) parseSegment32(offset uint64, size uint32) error {
	var seg segmentCommand32
	if err := readStruct(f.raw, offset+8, f.Endian, &seg); err != nil {
		return fmt.Errorf("machocore: truncated LC_SEGMENT: %w", err)
	}
	segName := cstrFixed(seg.SegName[:])
	sectOff := offset + 8 + uint64(binary.Size(seg))
	for i := uint32(0); i < seg.NSects; i++ {
		if sectOff+uint64(binary.Size(section32{})) > offset+uint64(size) {
			return fmt.Errorf("machocore: LC_SEGMENT section table overruns command")
		}
		var s section32
		if err := readStruct(f.raw, sectOff, f.Endian, &s); err != nil {
			return fmt.Errorf("machocore: truncated section header: %w", err)
		}
		f.Sections = append(f.Sections, Section{
			SegName:  segName,
			SectName: cstrFixed(s.SectName[:]),
			Addr:     uint64(s.Addr),
			Size:     uint64(s.Size),
			Offset:   s.Offset,
		})
		sectOff += uint64(binary.Size(s))
	}
	return nil
}

func (f *File) parseSegment64(offset uint64, size uint32) error {
	var seg segmentCommand64
	if err := readStruct(f.raw, offset+8, f.Endian, &seg); err != nil {
		return fmt.Errorf("machocore: truncated LC_SEGMENT_64: %w", err)
	}
	segName := cstrFixed(seg.SegName[:])
	sectOff := offset + 8 + uint64(binary.Size(seg))
	for i := uint32(0); i < seg.NSects; i++ {
		if sectOff+uint64(binary.Size(section64{})) > offset+uint64(size) {
			return fmt.Errorf("machocore: LC_SEGMENT_64 section table overruns command")
		}
		var s section64
		if err := readStruct(f.raw, sectOff, f.Endian, &s); err != nil {
			return fmt.Errorf("machocore: truncated section header: %w", err)
		}
		f.Sections = append(f.Sections, Section{
			SegName:  segName,
			SectName: cstrFixed(s.SectName[:]),
			Addr:     s.Addr,
			Size:     s.Size,
			Offset:   s.Offset,
		})
		sectOff += uint64(binary.Size(s))
	}
	return nil
}

// readSymbolNames reads every NUL-terminated string in the symbol
// table's string pool. We do not need symbol addresses/types, only the
// names, for the security checks.
func (f *File) readSymbolNames(s symtabCommand) {
	if s.StrSize == 0 || uint64(s.StrOff)+uint64(s.StrSize) > uint64(len(f.raw)) {
		return
	}
	pool := f.raw[s.StrOff : s.StrOff+s.StrSize]
	start := 0
	for i, b := range pool {
		if b == 0 {
			if i > start {
				f.SymbolNames = append(f.SymbolNames, string(pool[start:i]))
			}
			start = i + 1
		}
	}
}

func cstrFixed(b []byte) string {
	if idx := bytes.IndexByte(b, 0); idx >= 0 {
		return string(b[:idx])
	}
	return string(b)
}

func readStruct(data []byte, offset uint64, endian binary.ByteOrder, v interface{}) error {
	size := uint64(binary.Size(v))
	if offset > uint64(len(data)) {
		return fmt.Errorf("machocore: offset 0x%x beyond file", offset)
	}
	end := offset + size
	if end < offset || end > uint64(len(data)) {
		return fmt.Errorf("machocore: range [0x%x,0x%x) beyond file", offset, end)
	}
	return binary.Read(bytes.NewReader(data[offset:end]), endian, v)
}

// SectionsInSegment returns the sections belonging to a named segment,
// in load-command order.
func (f *File) SectionsInSegment(seg string) []Section {
	var out []Section
	for _, s := range f.Sections {
		if s.SegName == seg {
			out = append(out, s)
		}
	}
	return out
}
