// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

package machocore

import (
	"debug/macho"
	"encoding/binary"
	"fmt"
)

// FatArch describes one architecture slice of a universal binary.
type FatArch struct {
	CPUType macho.Cpu
	Offset  uint64
	Size    uint64
}

type fatHeader struct {
	Magic    uint32
	NArch    uint32
}

type fatArch32 struct {
	CPUType    uint32
	CPUSubtype uint32
	Offset     uint32
	Size       uint32
	Align      uint32
}

type fatArch64 struct {
	CPUType    uint32
	CPUSubtype uint32
	Offset     uint64
	Size       uint64
	Align      uint32
	Reserved   uint32
}

// ParseFat decodes a universal/fat Mach-O container's architecture
// table. Fat headers and their fat_arch entries are always stored in
// big-endian byte order regardless of host.
func ParseFat(data []byte) ([]FatArch, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("machocore: fat file too small")
	}
	var h fatHeader
	if err := readStruct(data, 0, binary.BigEndian, &h); err != nil {
		return nil, err
	}

	is64 := binary.BigEndian.Uint32(data[0:4]) == 0xcafebabf

	out := make([]FatArch, 0, h.NArch)
	entSize := uint64(20)
	if is64 {
		entSize = 32
	}
	for i := uint32(0); i < h.NArch; i++ {
		off := 8 + uint64(i)*entSize
		if is64 {
			var a fatArch64
			if err := readStruct(data, off, binary.BigEndian, &a); err != nil {
				return nil, fmt.Errorf("machocore: truncated fat_arch_64 %d: %w", i, err)
			}
			out = append(out, FatArch{CPUType: macho.Cpu(a.CPUType), Offset: a.Offset, Size: a.Size})
		} else {
			var a fatArch32
			if err := readStruct(data, off, binary.BigEndian, &a); err != nil {
				return nil, fmt.Errorf("machocore: truncated fat_arch %d: %w", i, err)
			}
			out = append(out, FatArch{CPUType: macho.Cpu(a.CPUType), Offset: uint64(a.Offset), Size: uint64(a.Size)})
		}
	}
	return out, nil
}

// Slice bounds-checks and returns the byte range for one arch slice.
func Slice(data []byte, a FatArch) ([]byte, error) {
	if a.Offset > uint64(len(data)) {
		return nil, fmt.Errorf("machocore: fat arch offset beyond file")
	}
	end := a.Offset + a.Size
	if end < a.Offset || end > uint64(len(data)) {
		return nil, fmt.Errorf("machocore: fat arch range beyond file")
	}
	return data[a.Offset:end], nil
}
