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

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"
)

func TestIDMapLinesBlocksRootIDWhenContainerIDNonZero(t *testing.T) {
	m := specs.LinuxIDMapping{ContainerID: 1000, HostID: 2000, Size: 1}

	got := idMapLines(m, 65534, true)
	assert.Equal(t, "0 65534 1\n1000 2000 1\n", got)
}

func TestIDMapLinesOmitsRootBlockWhenContainerIDIsZero(t *testing.T) {
	m := specs.LinuxIDMapping{ContainerID: 0, HostID: 2000, Size: 1}

	got := idMapLines(m, 65534, true)
	assert.Equal(t, "0 2000 1\n", got)
}

func TestIDMapLinesSingleLineWhenBlockRootIDFalse(t *testing.T) {
	m := specs.LinuxIDMapping{ContainerID: 1000, HostID: 2000, Size: 1}

	got := idMapLines(m, 65534, false)
	assert.Equal(t, "1000 2000 1\n", got)
}

func TestWriteSetgroupsDenyToleratesMissingFile(t *testing.T) {
	// An absurdly high pid guarantees /proc/<pid>/setgroups doesn't exist,
	// exercising the pre-3.19-kernel "ENOENT is swallowed" path without
	// needing an actual child process.
	err := writeSetgroupsDeny(1 << 30)
	assert.NoError(t, err)
}
