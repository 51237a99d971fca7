// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package reporter renders a scan's result stream as either a JSON
// document or colorized human text.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/19h/symwalker/internal/scanerr"
	"github.com/19h/symwalker/internal/scanner"
	"github.com/fatih/color"
)

// jsonRecord is one flattened entry of the JSON output schema. Optional
// fields stay as pointers (never omitempty) so absent values marshal
// as explicit JSON null rather than being omitted.
type jsonRecord struct {
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	MTime string `json:"mtime"`

	Format string `json:"format"`
	Arch   string `json:"arch"`
	Bits   int    `json:"bits"`
	Kind   string `json:"kind"`

	IsStripped       bool     `json:"is_stripped"`
	HasEmbeddedDebug bool     `json:"has_embedded_debug"`
	DebugSections    []string `json:"debug_sections"`

	EntryPoint  *string `json:"entry_point"`
	Interpreter *string `json:"interpreter"`
	BuildID     *string `json:"build_id"`

	GnuDebuglinkName *string `json:"gnu_debuglink_name"`
	GnuDebuglinkCRC  *string `json:"gnu_debuglink_crc32"`

	UUID *string `json:"uuid"`

	PIE     bool `json:"pie"`
	NX      bool `json:"nx"`
	Canary  bool `json:"canary"`
	RELRO   bool `json:"relro"`
	Fortify bool `json:"fortify"`

	Embedded            bool    `json:"embedded"`
	DebugFilePath       *string `json:"debug_file_path"`
	DebuginfodAvailable *bool   `json:"debuginfod_available"`
	DebuginfodURL       *string `json:"debuginfod_url"`
	DownloadedPath      *string `json:"downloaded_path"`
}

// jsonOutput is the top-level JSON document: the flattened record
// array plus the sibling "errors" array every non-fatal diagnostic is
// surfaced through.
type jsonOutput struct {
	Records []jsonRecord     `json:"records"`
	Errors  []*scanerr.Error `json:"errors"`
}

// WriteJSON renders records and diagnostics as one well-formed JSON
// document: an object wrapping a records array and an errors array
// (see DESIGN.md for why the top level is an object rather than a bare
// array).
func WriteJSON(w io.Writer, records []scanner.Record, errs []*scanerr.Error) error {
	out := jsonOutput{Records: make([]jsonRecord, 0, len(records)), Errors: errs}
	for _, r := range records {
		out.Records = append(out.Records, toJSONRecord(r))
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

func toJSONRecord(r scanner.Record) jsonRecord {
	f := r.Facts
	loc := r.Location

	jr := jsonRecord{
		Path:             f.Path,
		Size:             f.Size,
		MTime:            f.MTime.UTC().Format("2006-01-02T15:04:05Z"),
		Format:           string(f.Format),
		Arch:             f.Arch,
		Bits:             f.Bits,
		Kind:             string(f.Kind),
		IsStripped:       f.IsStripped,
		HasEmbeddedDebug: f.HasEmbeddedDebug,
		DebugSections:    f.DebugSections,
		Interpreter:      f.Interpreter,
		BuildID:          f.BuildID,
		UUID:             f.UUID,
		PIE:              f.Mitigations.PIE,
		NX:               f.Mitigations.NX,
		Canary:           f.Mitigations.Canary,
		RELRO:            f.Mitigations.RELRO,
		Fortify:          f.Mitigations.Fortify,
		Embedded:         loc.Embedded,
		DebugFilePath:    loc.LocalPath,
		DebuginfodURL:    loc.RemoteURL,
		DownloadedPath:   loc.DownloadedPath,
	}

	if f.EntryPoint != nil {
		s := "0x" + strconv.FormatUint(*f.EntryPoint, 16)
		jr.EntryPoint = &s
	}
	if f.GnuDebugLink != nil {
		jr.GnuDebuglinkName = &f.GnuDebugLink.Name
		crc := fmt.Sprintf("0x%08x", f.GnuDebugLink.CRC)
		jr.GnuDebuglinkCRC = &crc
	}
	if loc.CheckedRemote {
		available := loc.RemoteURL != nil
		jr.DebuginfodAvailable = &available
	}

	return jr
}

// glyph renders a presence/absence sentinel for a tri-state: present,
// absent, or not-checked.
func glyph(checked, present bool) string {
	if !checked {
		return "?"
	}
	if present {
		return "✓"
	}
	return "✗"
}

// WriteHuman renders records as per-binary text blocks. verbose adds
// an extended block; noColor disables ANSI regardless of terminal
// detection, honoring the NO_COLOR convention.
func WriteHuman(w io.Writer, records []scanner.Record, errs []*scanerr.Error, verbose, noColor bool) {
	c := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	if noColor {
		color.NoColor = true
	}

	for _, r := range records {
		f := r.Facts
		loc := r.Location

		fmt.Fprintf(w, "%s\n", c.Sprint(f.Path))
		fmt.Fprintf(w, "  format=%s arch=%s bits=%d kind=%s\n", f.Format, f.Arch, f.Bits, f.Kind)
		fmt.Fprintf(w, "  stripped=%s embedded_debug=%s\n",
			boolGlyph(f.IsStripped), boolGlyph(f.HasEmbeddedDebug))

		localGlyph := glyph(true, loc.Embedded || loc.LocalPath != nil)
		remoteGlyph := glyph(loc.CheckedRemote, loc.RemoteURL != nil)
		fmt.Fprintf(w, "  local=%s remote=%s\n", localGlyph, remoteGlyph)

		if verbose {
			if f.BuildID != nil {
				fmt.Fprintf(w, "  build_id=%s\n", *f.BuildID)
			}
			if f.UUID != nil {
				fmt.Fprintf(w, "  uuid=%s\n", *f.UUID)
			}
			if loc.LocalPath != nil {
				fmt.Fprintf(w, "  debug_file_path=%s\n", *loc.LocalPath)
			}
			if loc.RemoteURL != nil {
				fmt.Fprintf(w, "  debuginfod_url=%s\n", *loc.RemoteURL)
			}
			fmt.Fprintf(w, "  pie=%s nx=%s canary=%s relro=%s fortify=%s\n",
				boolGlyph(f.Mitigations.PIE), boolGlyph(f.Mitigations.NX),
				boolGlyph(f.Mitigations.Canary), boolGlyph(f.Mitigations.RELRO),
				boolGlyph(f.Mitigations.Fortify))
		}
	}

	for _, e := range errs {
		bad.Fprintf(w, "error: %s\n", e.Error())
	}
}

func boolGlyph(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
