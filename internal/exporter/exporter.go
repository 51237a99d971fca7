// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

// Package exporter populates an output tree with copies of scanned
// binaries and/or their resolved debug artifacts, and emits a manifest
// describing what happened.
package exporter

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/debuginfod"
	"github.com/19h/symwalker/internal/scanerr"
	"github.com/19h/symwalker/internal/scanner"
)

// FileManifest is one entry of manifest.json's "files" array.
type FileManifest struct {
	Binary            string `json:"binary"`
	BinaryCopied      bool   `json:"binary_copied,omitempty"`
	SymbolsCopied     bool   `json:"symbols_copied,omitempty"`
	SymbolsDownloaded bool   `json:"symbols_downloaded,omitempty"`
}

// Manifest is the root of manifest.json.
type Manifest struct {
	Count int            `json:"count"`
	Files []FileManifest `json:"files"`
}

// Run exports every record into cfg.Output and writes manifest.json at
// its root. Without --force, an existing destination is left alone and
// recorded as a per-file OutputConflict diagnostic.
func Run(ctx context.Context, cfg config.Config, records []scanner.Record) (*Manifest, []*scanerr.Error) {
	var errs []*scanerr.Error
	manifest := &Manifest{}

	if err := os.MkdirAll(cfg.Output, 0o755); err != nil {
		errs = append(errs, scanerr.Fatal("cannot create output directory: "+err.Error()))
		return manifest, errs
	}

	client := debuginfod.New(cfg.ResolveDebuginfodServers())

	for i := range records {
		rec := &records[i]
		entry := FileManifest{Binary: rec.Facts.Path}

		if cfg.CopyBinaries {
			dest := filepath.Join(cfg.Output, basenameNoArchSuffix(rec.Facts.Path))
			if ok, err := copyPreservingMTime(basePath(rec.Facts.Path), dest, cfg.Force); err != nil {
				errs = append(errs, err)
			} else {
				entry.BinaryCopied = ok
			}
		}

		if rec.Location.LocalPath != nil {
			dest := localArtifactDest(cfg.Output, rec.Facts.Path, *rec.Location.LocalPath)
			info, statErr := os.Stat(*rec.Location.LocalPath)
			if statErr == nil && info.IsDir() {
				if ok, err := copyDirRecursive(*rec.Location.LocalPath, dest, cfg.Force); err != nil {
					errs = append(errs, err)
				} else {
					entry.SymbolsCopied = ok
				}
			} else if statErr == nil {
				if ok, err := copyPreservingMTime(*rec.Location.LocalPath, dest, cfg.Force); err != nil {
					errs = append(errs, err)
				} else {
					entry.SymbolsCopied = ok
				}
			}
		}

		if cfg.DownloadRemote && rec.Location.RemoteURL != nil {
			dest := filepath.Join(cfg.Output, basenameNoArchSuffix(rec.Facts.Path)+".debug")
			hit := &debuginfod.Hit{URL: *rec.Location.RemoteURL}
			if _, statErr := os.Stat(dest); statErr == nil && !cfg.Force {
				errs = append(errs, scanerr.OutputConflict(dest))
			} else if err := client.Fetch(ctx, hit, dest); err != nil {
				errs = append(errs, scanerr.NetworkTransient(*rec.Location.RemoteURL, err.Error()))
			} else {
				entry.SymbolsDownloaded = true
				rec.Location.DownloadedPath = &dest
			}
		}

		manifest.Files = append(manifest.Files, entry)
	}
	manifest.Count = len(manifest.Files)

	manifestPath := filepath.Join(cfg.Output, "manifest.json")
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		errs = append(errs, scanerr.Fatal("cannot marshal manifest: "+err.Error()))
		return manifest, errs
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		errs = append(errs, scanerr.Fatal("cannot write manifest: "+err.Error()))
	}

	return manifest, errs
}

// basePath strips a fat-slice "#arch=<name>" suffix to recover the
// real on-disk path to copy from.
func basePath(path string) string {
	if idx := strings.LastIndex(path, "#arch="); idx >= 0 {
		return path[:idx]
	}
	return path
}

func basenameNoArchSuffix(path string) string {
	return filepath.Base(basePath(path))
}

func localArtifactDest(outputDir, binaryPath, localPath string) string {
	base := basenameNoArchSuffix(binaryPath)
	if strings.HasSuffix(localPath, ".dSYM") {
		return filepath.Join(outputDir, base+".dSYM")
	}
	return filepath.Join(outputDir, base+".debug")
}

// copyPreservingMTime copies src to dest, refusing to overwrite an
// existing dest unless force is set. A refused overwrite returns
// ok=false with an OutputConflict error, which the caller records as a
// per-file diagnostic.
func copyPreservingMTime(src, dest string, force bool) (bool, *scanerr.Error) {
	if !force {
		if _, err := os.Stat(dest); err == nil {
			return false, scanerr.OutputConflict(dest)
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return false, scanerr.Unreadable(src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return false, scanerr.Unreadable(src, err)
	}

	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return false, scanerr.Unreadable(dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return false, scanerr.Unreadable(dest, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return false, scanerr.Unreadable(dest, err)
	}
	if err := os.Chtimes(tmp, info.ModTime(), info.ModTime()); err != nil {
		os.Remove(tmp)
		return false, scanerr.Unreadable(dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return false, scanerr.Unreadable(dest, err)
	}
	return true, nil
}

// copyDirRecursive copies a dSYM bundle directory tree to dest.
func copyDirRecursive(src, dest string, force bool) (bool, *scanerr.Error) {
	if !force {
		if _, err := os.Stat(dest); err == nil {
			return false, scanerr.OutputConflict(dest)
		}
	}
	tmp := dest + ".tmp"
	os.RemoveAll(tmp)

	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(tmp, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFileRaw(path, target, info.Mode().Perm())
	})
	if err != nil {
		os.RemoveAll(tmp)
		return false, scanerr.Unreadable(src, err)
	}
	if force {
		os.RemoveAll(dest)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.RemoveAll(tmp)
		return false, scanerr.Unreadable(dest, err)
	}
	return true, nil
}

func copyFileRaw(src, dest string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
