//
// Copyright 2019-2023 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

//go:build linux
// +build linux

package bastille

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestComputeCloneFlagsFullyRestricted(t *testing.T) {
	cfg := NewConfiguration()
	flags := computeCloneFlags(cfg)

	assert.NotZero(t, flags&unix.CLONE_NEWNS)
	assert.NotZero(t, flags&unix.CLONE_NEWUSER)
	assert.NotZero(t, flags&unix.CLONE_NEWPID)
	assert.NotZero(t, flags&unix.CLONE_NEWNET)
}

func TestComputeCloneFlagsAllowNetworkOmitsNetNamespace(t *testing.T) {
	cfg := NewConfiguration().AllowNetwork(true)
	flags := computeCloneFlags(cfg)

	assert.Zero(t, flags&unix.CLONE_NEWNET)
	assert.NotZero(t, flags&unix.CLONE_NEWPID)
}

func TestComputeCloneFlagsAllowSysctlOmitsPIDNamespace(t *testing.T) {
	cfg := NewConfiguration().AllowSysctl(true)
	flags := computeCloneFlags(cfg)

	assert.Zero(t, flags&unix.CLONE_NEWPID)
	assert.NotZero(t, flags&unix.CLONE_NEWNET)
}

func TestComputeCloneFlagsAllowBothOmitsBothNamespaces(t *testing.T) {
	cfg := NewConfiguration().AllowNetwork(true).AllowSysctl(true)
	flags := computeCloneFlags(cfg)

	assert.Zero(t, flags&unix.CLONE_NEWPID)
	assert.Zero(t, flags&unix.CLONE_NEWNET)
	// Mount and user namespaces are unconditional.
	assert.NotZero(t, flags&unix.CLONE_NEWNS)
	assert.NotZero(t, flags&unix.CLONE_NEWUSER)
}

func TestSyncPipeSignalWait(t *testing.T) {
	p, err := newSyncPipe()
	assert.NoError(t, err)
	defer p.closeRead()
	defer p.closeWrite()

	done := make(chan error, 1)
	go func() {
		done <- p.wait()
	}()

	assert.NoError(t, p.signal())
	assert.NoError(t, <-done)
}
