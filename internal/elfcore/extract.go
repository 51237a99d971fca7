// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

package elfcore

import (
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// BuildID searches, in order, a .note.gnu.build-id section and any
// PT_NOTE segment for a GNU build-id note (type NT_GNU_BUILD_ID = 3),
// returning its descriptor bytes lowercase-hex encoded.
func (f *File) BuildID() (string, bool) {
	if sect, ok := f.SectionByName(".note.gnu.build-id"); ok {
		if content, err := f.SectionContent(sect); err == nil {
			if id, ok := parseBuildIDNote(content, f.Endian); ok {
				return id, true
			}
		}
	}
	for _, seg := range f.Segments {
		if seg.Type != elf.PT_NOTE {
			continue
		}
		content, err := f.SegmentContent(seg)
		if err != nil {
			continue
		}
		if id, ok := parseBuildIDNote(content, f.Endian); ok {
			return id, true
		}
	}
	return "", false
}

// parseBuildIDNote walks a NOTE payload's note records looking for the
// GNU build-id entry. Note layout: namesz, descsz, type (4 bytes each,
// in the file's own byte order), then name padded to 4 bytes, then
// descriptor padded to 4 bytes.
func parseBuildIDNote(data []byte, endian binary.ByteOrder) (string, bool) {
	offset := 0
	for offset+12 <= len(data) {
		namesz := int(endian.Uint32(data[offset : offset+4]))
		descsz := int(endian.Uint32(data[offset+4 : offset+8]))
		noteType := endian.Uint32(data[offset+8 : offset+12])
		offset += 12

		nameszAligned := align4(namesz)
		descszAligned := align4(descsz)
		if namesz < 0 || descsz < 0 || offset+nameszAligned+descszAligned > len(data) {
			break
		}

		const ntGNUBuildID = 3
		if noteType == ntGNUBuildID && namesz >= 4 && string(data[offset:offset+4]) == "GNU\x00" {
			desc := data[offset+nameszAligned : offset+nameszAligned+descsz]
			if len(desc) >= 1 {
				return hex.EncodeToString(desc), true
			}
		}

		offset += nameszAligned + descszAligned
	}
	return "", false
}

func align4(n int) int { return (n + 3) &^ 3 }

// DebugLink is the parsed contents of a .gnu_debuglink section.
type DebugLink struct {
	Name string
	CRC  uint32
}

// GnuDebugLink reads the .gnu_debuglink section: a NUL-terminated
// filename padded to 4 bytes, followed by a little-endian CRC32 of the
// referenced file.
func (f *File) GnuDebugLink() (DebugLink, bool) {
	sect, ok := f.SectionByName(".gnu_debuglink")
	if !ok {
		return DebugLink{}, false
	}
	content, err := f.SectionContent(sect)
	if err != nil {
		return DebugLink{}, false
	}
	nul := -1
	for i, b := range content {
		if b == 0 {
			nul = i
			break
		}
	}
	if nul < 0 {
		return DebugLink{}, false
	}
	name := string(content[:nul])
	crcOff := align4(nul + 1)
	if crcOff+4 > len(content) {
		return DebugLink{}, false
	}
	crc := binary.LittleEndian.Uint32(content[crcOff : crcOff+4])
	return DebugLink{Name: name, CRC: crc}, true
}

// Interpreter reads the PT_INTERP segment's NUL-terminated payload.
func (f *File) Interpreter() (string, bool) {
	for _, seg := range f.Segments {
		if seg.Type != elf.PT_INTERP {
			continue
		}
		content, err := f.SegmentContent(seg)
		if err != nil || len(content) == 0 {
			continue
		}
		if idx := indexByte(content, 0); idx >= 0 {
			return string(content[:idx]), true
		}
		return string(content), true
	}
	return "", false
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// DebugSections enumerates section names starting with ".debug_" or
// ".zdebug_", preserving table order.
func (f *File) DebugSections() []string {
	var out []string
	for _, s := range f.Sections {
		if strings.HasPrefix(s.Name, ".debug_") || strings.HasPrefix(s.Name, ".zdebug_") {
			out = append(out, s.Name)
		}
	}
	return out
}

// HasPTInterp reports whether a PT_INTERP segment is present.
func (f *File) HasPTInterp() bool {
	for _, seg := range f.Segments {
		if seg.Type == elf.PT_INTERP {
			return true
		}
	}
	return false
}

// GNUStack returns the PT_GNU_STACK segment, if present.
func (f *File) GNUStack() (Segment, bool) {
	for _, seg := range f.Segments {
		if seg.Type == elf.PT_GNU_STACK {
			return seg, true
		}
	}
	return Segment{}, false
}

// HasGNURelro reports whether a PT_GNU_RELRO segment is present.
func (f *File) HasGNURelro() bool {
	for _, seg := range f.Segments {
		if seg.Type == elf.PT_GNU_RELRO {
			return true
		}
	}
	return false
}
