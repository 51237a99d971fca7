// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDownloadRemoteRequiresOutput(t *testing.T) {
	cfg := Config{DownloadRemote: true, HasOutput: false}
	assert.Error(t, cfg.Validate())

	cfg.HasOutput = true
	assert.NoError(t, cfg.Validate())
}

func TestValidateCopyBinariesRequiresOutput(t *testing.T) {
	cfg := Config{CopyBinaries: true}
	assert.Error(t, cfg.Validate())
}

func TestResolveDebuginfodServersPrecedence(t *testing.T) {
	cfg := Config{DebuginfodURLs: []string{"https://flag.example/"}}
	os.Setenv("DEBUGINFOD_URLS", "https://env.example/")
	defer os.Unsetenv("DEBUGINFOD_URLS")

	assert.Equal(t, []string{"https://flag.example/"}, cfg.ResolveDebuginfodServers())
}

func TestResolveDebuginfodServersEnvFallback(t *testing.T) {
	cfg := Config{}
	os.Setenv("DEBUGINFOD_URLS", "https://a.example/ https://b.example/")
	defer os.Unsetenv("DEBUGINFOD_URLS")

	assert.Equal(t, []string{"https://a.example/", "https://b.example/"}, cfg.ResolveDebuginfodServers())
}

func TestResolveDebuginfodServersDefault(t *testing.T) {
	cfg := Config{}
	os.Unsetenv("DEBUGINFOD_URLS")

	assert.Equal(t, DefaultDebuginfodServers, cfg.ResolveDebuginfodServers())
}

func TestNoColorHonorsEnv(t *testing.T) {
	os.Setenv("NO_COLOR", "1")
	defer os.Unsetenv("NO_COLOR")
	assert.True(t, NoColor())
}
