// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package mapper opens a candidate file read-only and exposes its bytes
// as a bounded window, memory-mapped where possible. The mapping is
// scoped to a single parse: callers must Close it before handing
// results to anything downstream.
package mapper

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Mapping is a read-only byte window over a file. Bytes() is valid only
// between a successful Open and a call to Close.
type Mapping struct {
	file *os.File
	data []byte
	mmap bool
}

// Open opens path read-only and maps its contents. It fails soft with a
// plain error (never a panic) on permission, non-regular, or
// zero-length files — callers translate that into a scanerr.Unreadable
// and skip the file.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	size := info.Size()
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("%s: empty file", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		return &Mapping{file: f, data: data, mmap: true}, nil
	}

	// Fall back to a bounded read when mmap is unavailable (tmpfs
	// oddities, non-Unix targets, files backed by special filesystems).
	buf := make([]byte, size)
	if _, rerr := io.ReadFull(f, buf); rerr != nil {
		f.Close()
		return nil, rerr
	}
	return &Mapping{file: f, data: buf, mmap: false}, nil
}

// Bytes returns the mapped window. The returned slice must not be
// retained past Close.
func (m *Mapping) Bytes() []byte { return m.data }

// Close releases the mapping and the underlying file descriptor.
func (m *Mapping) Close() error {
	var err error
	if m.mmap && m.data != nil {
		err = unix.Munmap(m.data)
	}
	m.data = nil
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}
