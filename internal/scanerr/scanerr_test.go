// Copyright 2019 The UNICORE Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file
//
// Author: Gaulthier Gain <gaulthier.gain@uliege.be>

package scanerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnreadableFormatsWithPath(t *testing.T) {
	e := Unreadable("/bin/app", errors.New("permission denied"))
	assert.Equal(t, KindUnreadable, e.Kind)
	assert.Contains(t, e.Error(), "/bin/app")
	assert.Contains(t, e.Error(), "permission denied")
}

func TestNetworkTransientFormatsWithURL(t *testing.T) {
	e := NetworkTransient("https://debuginfod.example/buildid/abc", "connection refused")
	assert.Contains(t, e.Error(), "https://debuginfod.example/buildid/abc")
}

func TestOutputConflictDefaultDetail(t *testing.T) {
	e := OutputConflict("/out/app.debug")
	assert.Equal(t, KindOutputConflict, e.Kind)
	assert.Contains(t, e.Error(), "--force")
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(Fatal("cannot stat root")))
	assert.False(t, IsFatal(Unreadable("/bin/app", errors.New("x"))))
	assert.False(t, IsFatal(errors.New("plain error")))
}
