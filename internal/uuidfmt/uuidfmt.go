// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package uuidfmt formats a raw LC_UUID payload as the canonical
// 8-4-4-4-12 uppercase string used for Mach-O UUIDs.
package uuidfmt

import (
	"strings"

	"github.com/google/uuid"
)

// Canonical formats raw as an uppercase canonical UUID string, or ""
// if raw is not a well-formed UUID (which cannot happen for a fixed
// 16-byte array, but FromBytes's signature still returns an error).
func Canonical(raw [16]byte) string {
	u, err := uuid.FromBytes(raw[:])
	if err != nil {
		return ""
	}
	return strings.ToUpper(u.String())
}
