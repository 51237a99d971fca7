// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package sniffer classifies a byte window as ELF, Mach-O (thin or
// fat/universal), or neither, examining only the first few bytes.
package sniffer

import "encoding/binary"

// Format is the result of classifying a byte window.
type Format int

const (
	// Unknown means the window does not look like a binary we handle.
	Unknown Format = iota
	// ELF is the Linux/Unix object-file format.
	ELF
	// MachOThin is a single-architecture Mach-O image.
	MachOThin
	// MachOFat is a universal/fat Mach-O container with multiple slices.
	MachOFat
)

// Magic values are matched against the big-endian interpretation of the
// first 4 bytes.
const (
	magicMHBE    = 0xfeedface // MH_MAGIC:    FE ED FA CE
	magicMHLE    = 0xcefaedfe // MH_CIGAM:    CE FA ED FE
	magicMH64BE  = 0xfeedfacf // MH_MAGIC_64: FE ED FA CF
	magicMH64LE  = 0xcffaedfe // MH_CIGAM_64: CF FA ED FE
	magicFat32   = 0xcafebabe // FAT_MAGIC:   CA FE BA BE
	magicFat64   = 0xcafebabf // FAT_MAGIC_64:CA FE BA BF
)

// Sniff classifies data by its first 4 bytes, touching at most 16
// bytes. A window shorter than 4 bytes is always Unknown.
func Sniff(data []byte) Format {
	if len(data) < 4 {
		return Unknown
	}
	if data[0] == 0x7f && data[1] == 'E' && data[2] == 'L' && data[3] == 'F' {
		return ELF
	}

	magic := binary.BigEndian.Uint32(data[0:4])
	switch magic {
	case magicMHBE, magicMHLE, magicMH64BE, magicMH64LE:
		return MachOThin
	case magicFat32, magicFat64:
		return MachOFat
	}
	return Unknown
}

// ThinIs64 reports whether a thin Mach-O header's magic indicates
// 64-bit, given a window already classified as MachOThin by Sniff.
func ThinIs64(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	magic := binary.BigEndian.Uint32(data[0:4])
	return magic == magicMH64BE || magic == magicMH64LE
}

// ThinIsBigEndian reports the byte order the rest of a thin Mach-O
// header was written in, given a window already classified as
// MachOThin by Sniff. A "CIGAM" magic means the header is byte-swapped
// relative to this sniffer's host, i.e. the file is little-endian.
func ThinIsBigEndian(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	magic := binary.BigEndian.Uint32(data[0:4])
	return magic == magicMHBE || magic == magicMH64BE
}
