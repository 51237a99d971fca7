// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

package binaryfacts

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/19h/symwalker/internal/security"
)

// elf64HeaderRaw mirrors internal/elfcore's unexported on-disk layout;
// duplicated here since test fixtures can't reach into a sibling
// package's internals.
type elf64HeaderRaw struct {
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

func minimalELF64(t *testing.T, etype uint16) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(make([]byte, 64))
	out := buf.Bytes()
	copy(out[0:16], []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})

	h := elf64HeaderRaw{
		Type: etype, Machine: 0x3e, Version: 1, Entry: 0x401000,
		Ehsize: 64, Shentsize: 64, Shnum: 0, Shstrndx: 0,
	}
	var hb bytes.Buffer
	require.NoError(t, binary.Write(&hb, binary.LittleEndian, &h))
	copy(out[16:64], hb.Bytes())
	return out
}

func minimalMachO64(t *testing.T, filetype uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0xfeedfacf)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0x01000007)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(3)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, filetype))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0)))
	return buf.Bytes()
}

func writeTemp(t *testing.T, data []byte) (string, os.FileInfo) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.WriteFile(path, data, 0o755))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return path, info
}

func TestParseELFExecutable(t *testing.T) {
	data := minimalELF64(t, 2 /* ET_EXEC */)
	path, info := writeTemp(t, data)

	f, err := ParseELF(path, data, info, true)
	require.NoError(t, err)
	assert.Equal(t, FormatELF, f.Format)
	assert.Equal(t, "x86_64", f.Arch)
	assert.Equal(t, 64, f.Bits)
	assert.Equal(t, KindExecutable, f.Kind)
	assert.True(t, f.IsStripped)
	require.NotNil(t, f.EntryPoint)
	assert.EqualValues(t, 0x401000, *f.EntryPoint)
}

func TestParseELFSkipsMitigationsWhenSecurityDisabled(t *testing.T) {
	data := minimalELF64(t, 2)
	path, info := writeTemp(t, data)

	f, err := ParseELF(path, data, info, false)
	require.NoError(t, err)
	assert.Equal(t, security.Mitigations{}, f.Mitigations)
}

func TestParseELFObjectKind(t *testing.T) {
	data := minimalELF64(t, 1 /* ET_REL */)
	path, info := writeTemp(t, data)

	f, err := ParseELF(path, data, info, true)
	require.NoError(t, err)
	assert.Equal(t, KindObject, f.Kind)
}

func TestParseMachOExecutable(t *testing.T) {
	data := minimalMachO64(t, 0x2 /* MH_EXECUTE */)
	path, info := writeTemp(t, data)

	f, err := ParseMachO(path, data, info, true)
	require.NoError(t, err)
	assert.Equal(t, FormatMachO, f.Format)
	assert.Equal(t, "x86_64", f.Arch)
	assert.Equal(t, 64, f.Bits)
	assert.Equal(t, KindExecutable, f.Kind)
	assert.True(t, f.IsStripped)
	assert.Nil(t, f.UUID)
}

func TestParseMachODylibKind(t *testing.T) {
	data := minimalMachO64(t, 0x6 /* MH_DYLIB */)
	path, info := writeTemp(t, data)

	f, err := ParseMachO(path, data, info, true)
	require.NoError(t, err)
	assert.Equal(t, KindLibrary, f.Kind)
}

func TestParseAllDispatchesELF(t *testing.T) {
	data := minimalELF64(t, 2)
	path, info := writeTemp(t, data)

	facts, err := ParseAll(path, data, info, true)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, FormatELF, facts[0].Format)
}

func TestParseAllDispatchesFatMachO(t *testing.T) {
	slice1 := minimalMachO64(t, 0x2)
	slice2 := minimalMachO64(t, 0x2)

	off1 := uint64(4096)
	off2 := off1 + uint64(len(slice1))
	// Pad off2 up to a page-ish boundary as real fat binaries do; exact
	// alignment isn't required for ParseFat/Slice correctness here.
	var fat bytes.Buffer
	require.NoError(t, binary.Write(&fat, binary.BigEndian, uint32(0xcafebabe)))
	require.NoError(t, binary.Write(&fat, binary.BigEndian, uint32(2)))
	require.NoError(t, binary.Write(&fat, binary.BigEndian, uint32(0x1000007))) // CPU_TYPE_X86_64
	require.NoError(t, binary.Write(&fat, binary.BigEndian, uint32(3)))
	require.NoError(t, binary.Write(&fat, binary.BigEndian, uint32(off1)))
	require.NoError(t, binary.Write(&fat, binary.BigEndian, uint32(len(slice1))))
	require.NoError(t, binary.Write(&fat, binary.BigEndian, uint32(12)))
	require.NoError(t, binary.Write(&fat, binary.BigEndian, uint32(0x100000c))) // CPU_TYPE_ARM64
	require.NoError(t, binary.Write(&fat, binary.BigEndian, uint32(0)))
	require.NoError(t, binary.Write(&fat, binary.BigEndian, uint32(off2)))
	require.NoError(t, binary.Write(&fat, binary.BigEndian, uint32(len(slice2))))
	require.NoError(t, binary.Write(&fat, binary.BigEndian, uint32(12)))

	image := make([]byte, off2+uint64(len(slice2)))
	copy(image, fat.Bytes())
	copy(image[off1:], slice1)
	copy(image[off2:], slice2)

	path, info := writeTemp(t, image)
	facts, err := ParseAll(path, image, info, true)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Contains(t, facts[0].Path, "#arch=")
}

func TestParseAllUnknownFormat(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	path, info := writeTemp(t, data)

	_, err := ParseAll(path, data, info, true)
	assert.Error(t, err)
}
