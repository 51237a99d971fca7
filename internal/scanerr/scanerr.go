// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package scanerr defines the non-fatal/fatal error taxonomy that every
// component reports through, so the Reporter can render a structured
// "errors" sibling array alongside the record stream.
package scanerr

import "fmt"

// Kind tags the five error categories of the error handling design.
type Kind string

const (
	// KindUnreadable covers open/stat/map failures on a scanned file.
	KindUnreadable Kind = "unreadable"
	// KindMalformed covers a parser rejecting a structurally invalid file.
	KindMalformed Kind = "malformed_binary"
	// KindNetwork covers a transient debuginfod server failure.
	KindNetwork Kind = "network_transient"
	// KindOutputConflict covers an exporter refusing to overwrite a file.
	KindOutputConflict Kind = "output_conflict"
	// KindFatal covers a condition that halts the run before emission.
	KindFatal Kind = "fatal"
)

// Error is a structured, per-file-or-run diagnostic. It implements the
// error interface so it composes with normal Go error handling, while
// still carrying enough structure for JSON rendering.
type Error struct {
	Kind   Kind   `json:"kind"`
	Path   string `json:"path,omitempty"`
	URL    string `json:"url,omitempty"`
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Detail)
	}
	if e.URL != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.URL, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unreadable builds a KindUnreadable diagnostic for path.
func Unreadable(path string, cause error) *Error {
	return &Error{Kind: KindUnreadable, Path: path, Detail: cause.Error()}
}

// Malformed builds a KindMalformed diagnostic for path.
func Malformed(path, detail string) *Error {
	return &Error{Kind: KindMalformed, Path: path, Detail: detail}
}

// NetworkTransient builds a KindNetwork diagnostic for a debuginfod URL.
func NetworkTransient(url, detail string) *Error {
	return &Error{Kind: KindNetwork, URL: url, Detail: detail}
}

// OutputConflict builds a KindOutputConflict diagnostic for path.
func OutputConflict(path string) *Error {
	return &Error{Kind: KindOutputConflict, Path: path, Detail: "refused to overwrite without --force"}
}

// Fatal builds a KindFatal diagnostic. A run that produces one of these
// before emission begins exits with status 1.
func Fatal(detail string) *Error {
	return &Error{Kind: KindFatal, Detail: detail}
}

// IsFatal reports whether err is a *Error with Kind == KindFatal.
func IsFatal(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindFatal
}
