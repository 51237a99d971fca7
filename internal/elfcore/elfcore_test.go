// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

package elfcore

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureSection describes one section to bake into a synthetic ELF64
// image; offsets and the string table are computed by buildELF64.
type fixtureSection struct {
	name string
	typ  uint32
	data []byte
}

// buildELF64 assembles a minimal, well-formed little-endian ELF64
// image with no program headers, suitable for exercising Parse and the
// extraction helpers without a real compiled binary on disk.
func buildELF64(t *testing.T, etype uint16, sections []fixtureSection) []byte {
	t.Helper()

	names := []string{""}
	for _, s := range sections {
		names = append(names, s.name)
	}
	names = append(names, ".shstrtab")

	var strtab bytes.Buffer
	offsets := make(map[string]uint32)
	for _, n := range names {
		if _, seen := offsets[n]; seen {
			continue
		}
		offsets[n] = uint32(strtab.Len())
		strtab.WriteString(n)
		strtab.WriteByte(0)
	}

	allSections := append([]fixtureSection{}, sections...)
	allSections = append(allSections, fixtureSection{name: ".shstrtab", typ: 3, data: strtab.Bytes()})

	var buf bytes.Buffer
	buf.Write(make([]byte, 64)) // header placeholder

	type placed struct {
		fixtureSection
		offset uint32
	}
	placedSections := make([]placed, 0, len(allSections))
	for _, s := range allSections {
		off := uint32(buf.Len())
		buf.Write(s.data)
		placedSections = append(placedSections, placed{s, off})
	}

	shoff := uint32(buf.Len())
	// Null section header.
	writeSectionHeader(&buf, 0, 0, 0, 0, 0)
	for _, p := range placedSections {
		writeSectionHeader(&buf, offsets[p.name], p.typ, uint64(p.offset), uint64(len(p.data)), 0)
	}

	out := buf.Bytes()
	header := elf64Header{
		Type:      etype,
		Machine:   0x3e, // EM_X86_64
		Version:   1,
		Entry:     0x401000,
		Phoff:     0,
		Shoff:     uint64(shoff),
		Flags:     0,
		Ehsize:    64,
		Phentsize: 0,
		Phnum:     0,
		Shentsize: 64,
		Shnum:     uint16(len(placedSections) + 1),
		Shstrndx:  uint16(len(placedSections)), // last section is .shstrtab
	}

	ident := []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	copy(out[0:16], ident)

	var hbuf bytes.Buffer
	require.NoError(t, binary.Write(&hbuf, binary.LittleEndian, &header))
	copy(out[16:64], hbuf.Bytes())

	return out
}

func writeSectionHeader(buf *bytes.Buffer, nameOff, shType uint32, offset, size uint64, flags uint64) {
	s := elf64Section{
		Name:   nameOff,
		Type:   shType,
		Flags:  flags,
		Addr:   0,
		Offset: offset,
		Size:   size,
	}
	_ = binary.Write(buf, binary.LittleEndian, &s)
}

func TestParseELF64Basics(t *testing.T) {
	data := buildELF64(t, 2 /* ET_EXEC */, []fixtureSection{
		{name: ".debug_info", typ: 1, data: []byte{1, 2, 3}},
	})

	f, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Class64, f.Class)
	assert.EqualValues(t, 0x401000, f.Entry)
	assert.False(t, f.HasSymtab)
	assert.Equal(t, []string{".debug_info"}, f.DebugSections())
}

func TestBuildIDRoundTrip(t *testing.T) {
	// Note layout: namesz(4) descsz(4) type(4) "GNU\0" desc.
	desc := []byte{0x4c, 0x3c, 0x46, 0x98, 0xe2}
	var note bytes.Buffer
	writeU32LE(&note, 4)
	writeU32LE(&note, uint32(len(desc)))
	writeU32LE(&note, 3) // NT_GNU_BUILD_ID
	note.WriteString("GNU\x00")
	note.Write(desc)
	for note.Len()%4 != 0 {
		note.WriteByte(0)
	}

	data := buildELF64(t, 2, []fixtureSection{
		{name: ".note.gnu.build-id", typ: 7, data: note.Bytes()},
	})

	f, err := Parse(data)
	require.NoError(t, err)
	id, ok := f.BuildID()
	require.True(t, ok)
	assert.Equal(t, "4c3c4698e2", id)
}

func TestGnuDebugLink(t *testing.T) {
	var link bytes.Buffer
	link.WriteString("hello.debug")
	link.WriteByte(0)
	for link.Len()%4 != 0 {
		link.WriteByte(0)
	}
	writeU32LE(&link, 0xdeadbeef)

	data := buildELF64(t, 3 /* ET_DYN */, []fixtureSection{
		{name: ".gnu_debuglink", typ: 1, data: link.Bytes()},
	})

	f, err := Parse(data)
	require.NoError(t, err)
	dl, ok := f.GnuDebugLink()
	require.True(t, ok)
	assert.Equal(t, "hello.debug", dl.Name)
	assert.Equal(t, uint32(0xdeadbeef), dl.CRC)
}

func TestELFKindObject(t *testing.T) {
	data := buildELF64(t, 1 /* ET_REL */, nil)
	f, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Class64, f.Class)
	assert.Equal(t, uint16(1), uint16(f.Type))
}

func TestParseRejectsTruncated(t *testing.T) {
	_, err := Parse([]byte{0x7f, 'E', 'L', 'F'})
	assert.Error(t, err)
}

func writeU32LE(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}
