// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

package reporter

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/19h/symwalker/internal/binaryfacts"
	"github.com/19h/symwalker/internal/resolver"
	"github.com/19h/symwalker/internal/scanerr"
	"github.com/19h/symwalker/internal/scanner"
)

func TestWriteJSONNullForAbsentOptionals(t *testing.T) {
	records := []scanner.Record{
		{
			Facts:    &binaryfacts.Facts{Path: "/bin/app", MTime: time.Unix(0, 0)},
			Location: resolver.SymbolLocation{},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, records, nil))

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	recs := out["records"].([]interface{})
	require.Len(t, recs, 1)
	rec := recs[0].(map[string]interface{})
	assert.Nil(t, rec["build_id"])
	assert.Nil(t, rec["uuid"])
	assert.Nil(t, rec["debuginfod_available"])
	assert.Equal(t, "/bin/app", rec["path"])
}

func TestWriteJSONIncludesErrors(t *testing.T) {
	var buf bytes.Buffer
	errs := []*scanerr.Error{scanerr.OutputConflict("/out/app")}
	require.NoError(t, WriteJSON(&buf, nil, errs))

	var out jsonOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Empty(t, out.Records)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, scanerr.KindOutputConflict, out.Errors[0].Kind)
}

func TestWriteJSONFormatsEntryPointAndCRC(t *testing.T) {
	entry := uint64(0x401000)
	records := []scanner.Record{
		{
			Facts: &binaryfacts.Facts{
				Path:         "/bin/app",
				EntryPoint:   &entry,
				GnuDebugLink: &binaryfacts.DebugLink{Name: "app.debug", CRC: 0xdeadbeef},
			},
			Location: resolver.SymbolLocation{},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, records, nil))

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	rec := out["records"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "0x401000", rec["entry_point"])
	assert.Equal(t, "0xdeadbeef", rec["gnu_debuglink_crc32"])
}

func TestWriteHumanRendersPathAndGlyphs(t *testing.T) {
	records := []scanner.Record{
		{
			Facts:    &binaryfacts.Facts{Path: "/bin/app", Format: binaryfacts.FormatELF, Arch: "x86_64", Bits: 64, Kind: binaryfacts.KindExecutable},
			Location: resolver.SymbolLocation{Embedded: true},
		},
	}

	var buf bytes.Buffer
	WriteHuman(&buf, records, nil, false, true)
	out := buf.String()
	assert.Contains(t, out, "/bin/app")
	assert.Contains(t, out, "format=ELF")
	assert.Contains(t, out, "local=✓ remote=?")
}
