// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package debuginfod is a stateless HTTP probe/fetch client for the
// debuginfod protocol: given a build-id and an ordered server list, it
// asks each server in turn whether it holds debuginfo for that
// build-id, and can stream a positive hit straight to disk.
package debuginfod

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultRequestTimeout bounds a single HTTP request.
const DefaultRequestTimeout = 5 * time.Second

// DefaultMaxBytes caps a downloaded debuginfo payload. Larger bodies
// are rejected mid-stream rather than exhausting disk.
const DefaultMaxBytes int64 = 512 * 1024 * 1024

// Client probes an ordered server list. It owns its own resty.Client;
// callers construct one Client per worker and never share one across
// goroutines.
type Client struct {
	http       *resty.Client
	servers    []string
	maxBytes   int64
}

// New builds a Client bound to servers, probed in the given order.
func New(servers []string) *Client {
	return &Client{
		http:     resty.New().SetTimeout(DefaultRequestTimeout),
		servers:  servers,
		maxBytes: DefaultMaxBytes,
	}
}

// Hit is a successful probe result: the server and the full debuginfo
// URL that returned 2xx.
type Hit struct {
	Server string
	URL    string
}

// Probe asks each server in order whether it holds debuginfo for
// buildID, stopping at the first 2xx response. A 404 means "try the
// next server"; a 5xx or network error is
// reported via errs but also just moves to the next server — the
// resolver never treats a probe failure as fatal.
//
// ProbeError carries the URL each failure belongs to, so callers can
// render a precise per-server diagnostic instead of a flattened one.
type ProbeError struct {
	URL   string
	Cause error
}

func (e ProbeError) Error() string { return fmt.Sprintf("%s: %s", e.URL, e.Cause) }

func (c *Client) Probe(ctx context.Context, buildID string) (*Hit, []ProbeError) {
	var errs []ProbeError
	for _, server := range c.servers {
		url := debugInfoURL(server, buildID)
		resp, err := c.http.R().SetContext(ctx).Head(url)
		if err != nil {
			errs = append(errs, ProbeError{URL: url, Cause: err})
			continue
		}
		if resp.StatusCode() == http.StatusNotFound {
			continue
		}
		if resp.IsSuccess() {
			return &Hit{Server: server, URL: url}, errs
		}
		errs = append(errs, ProbeError{URL: url, Cause: fmt.Errorf("status %d", resp.StatusCode())})
	}
	return nil, errs
}

// Fetch streams the hit's debuginfo body into destPath atomically: it
// writes to a temp file in the same directory and renames into place
// on success, so a cancelled download never leaves a truncated
// artifact. Bodies larger than c.maxBytes are
// rejected and the temp file is discarded.
func (c *Client) Fetch(ctx context.Context, hit *Hit, destPath string) error {
	dir := filepath.Dir(destPath)
	tmp, err := os.CreateTemp(dir, ".debuginfod-*.tmp")
	if err != nil {
		return fmt.Errorf("debuginfod: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(hit.URL)
	if err != nil {
		return fmt.Errorf("debuginfod: fetch %s: %w", hit.URL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	out, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("debuginfod: open temp: %w", err)
	}
	n, err := io.CopyN(out, body, c.maxBytes+1)
	closeErr := out.Close()
	if err != nil && err != io.EOF {
		return fmt.Errorf("debuginfod: copy body: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("debuginfod: close temp: %w", closeErr)
	}
	if n > c.maxBytes {
		return fmt.Errorf("debuginfod: payload exceeds %d byte cap", c.maxBytes)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("debuginfod: rename into place: %w", err)
	}
	return nil
}

func debugInfoURL(server, buildID string) string {
	base := server
	if len(base) == 0 || base[len(base)-1] != '/' {
		base += "/"
	}
	return base + "buildid/" + buildID + "/debuginfo"
}
