// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

package scanner

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/19h/symwalker/internal/binaryfacts"
	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/resolver"
)

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

func minimalELF64(t *testing.T) []byte {
	t.Helper()
	buf := make([]byte, 64)
	copy(buf[0:16], []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})
	h := elf64HeaderRaw{Type: 2, Machine: 0x3e, Version: 1, Entry: 0x401000, Ehsize: 64, Shentsize: 64}
	var hb bytes.Buffer
	require.NoError(t, binary.Write(&hb, binary.LittleEndian, &h))
	copy(buf[16:64], hb.Bytes())
	return buf
}

func TestRunFindsBinaryWithAdjacentDebug(t *testing.T) {
	root := t.TempDir()
	binPath := filepath.Join(root, "app")
	require.NoError(t, os.WriteFile(binPath, minimalELF64(t), 0o755))
	require.NoError(t, os.WriteFile(binPath+".debug", []byte("debug"), 0o644))

	cfg := config.Config{Directory: root}
	result, err := Run(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, binPath, result.Records[0].Facts.Path)
	require.NotNil(t, result.Records[0].Location.LocalPath)
}

func TestRunSkipsNonBinaryFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("hello"), 0o644))

	cfg := config.Config{Directory: root}
	result, err := Run(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, result.Records)
}

func TestRunFatalOnMissingRoot(t *testing.T) {
	cfg := config.Config{Directory: filepath.Join(t.TempDir(), "does-not-exist")}
	_, err := Run(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunHidesStrippedUnresolvedByDefault(t *testing.T) {
	root := t.TempDir()
	binPath := filepath.Join(root, "app")
	require.NoError(t, os.WriteFile(binPath, minimalELF64(t), 0o755))

	cfg := config.Config{Directory: root}
	result, err := Run(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, result.Records)
}

func TestRunShowStrippedIncludesUnresolved(t *testing.T) {
	root := t.TempDir()
	binPath := filepath.Join(root, "app")
	require.NoError(t, os.WriteFile(binPath, minimalELF64(t), 0o755))

	cfg := config.Config{Directory: root, ShowStripped: true}
	result, err := Run(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
}

func TestWalkRespectsMaxDepth(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "top"), []byte("x"), 0o644))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "deep"), []byte("x"), 0o644))

	cfg := config.Config{Directory: root, HasMaxDepth: true, MaxDepth: 1}
	paths := make(chan string, 64)
	errs := walk(context.Background(), cfg, zerolog.Nop(), paths)
	close(paths)
	assert.Empty(t, errs)

	var seen []string
	for p := range paths {
		seen = append(seen, p)
	}
	assert.Contains(t, seen, filepath.Join(root, "top"))
	assert.NotContains(t, seen, filepath.Join(nested, "deep"))
}

func TestApplyFiltersLocalOnly(t *testing.T) {
	localPath := "/debug/a.debug"
	records := []Record{
		{Facts: &binaryfacts.Facts{}, Location: resolver.SymbolLocation{LocalPath: &localPath}},
		{Facts: &binaryfacts.Facts{}, Location: resolver.SymbolLocation{}},
	}
	out := applyFilters(records, config.Config{LocalOnly: true})
	assert.Len(t, out, 1)
}

func TestApplyFiltersRemoteOnly(t *testing.T) {
	remoteURL := "https://debuginfod.example/buildid/abc/debuginfo"
	records := []Record{
		{Facts: &binaryfacts.Facts{}, Location: resolver.SymbolLocation{RemoteURL: &remoteURL}},
		{Facts: &binaryfacts.Facts{}, Location: resolver.SymbolLocation{}},
	}
	out := applyFilters(records, config.Config{RemoteOnly: true})
	assert.Len(t, out, 1)
}

func TestApplyFiltersShowStrippedDefaultHidesUnresolvedStripped(t *testing.T) {
	records := []Record{
		{Facts: &binaryfacts.Facts{IsStripped: true}, Location: resolver.SymbolLocation{}},
	}
	out := applyFilters(records, config.Config{})
	assert.Empty(t, out)

	out = applyFilters(records, config.Config{ShowStripped: true})
	assert.Len(t, out, 1)
}
