// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

package binaryfacts

import (
	"fmt"
	"os"

	"github.com/19h/symwalker/internal/machocore"
	"github.com/19h/symwalker/internal/sniffer"
)

// ParseAll classifies data and produces one Facts record per slice: one
// for ELF or thin Mach-O, one per architecture for a fat/universal
// Mach-O container, each carrying the "#arch=<name>" path suffix (see
// DESIGN.md for why fat containers are flattened into one record per
// slice rather than one nested record). checkSecurity gates whether
// Mitigations gets populated; a Facts record never changes after
// ParseAll returns it.
func ParseAll(path string, data []byte, info os.FileInfo, checkSecurity bool) ([]*Facts, error) {
	switch sniffer.Sniff(data) {
	case sniffer.ELF:
		f, err := ParseELF(path, data, info, checkSecurity)
		if err != nil {
			return nil, err
		}
		return []*Facts{f}, nil

	case sniffer.MachOThin:
		f, err := ParseMachO(path, data, info, checkSecurity)
		if err != nil {
			return nil, err
		}
		return []*Facts{f}, nil

	case sniffer.MachOFat:
		arches, err := machocore.ParseFat(data)
		if err != nil {
			return nil, err
		}
		var out []*Facts
		for _, a := range arches {
			slice, err := machocore.Slice(data, a)
			if err != nil {
				continue
			}
			suffixed := fmt.Sprintf("%s#arch=%s", path, cpuArchSuffix(a))
			f, err := ParseMachO(suffixed, slice, info, checkSecurity)
			if err != nil {
				continue
			}
			out = append(out, f)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("binaryfacts: fat binary has no parseable slices")
		}
		return out, nil

	default:
		return nil, fmt.Errorf("binaryfacts: not a recognized binary format")
	}
}

func cpuArchSuffix(a machocore.FatArch) string {
	if name, ok := machoArchNames[a.CPUType]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", uint32(a.CPUType))
}
