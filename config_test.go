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

package bastille

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigurationDefaults(t *testing.T) {
	c := NewConfiguration()

	assert.Empty(t, c.mappings.Slice())
	assert.Empty(t, c.softLinks)
	assert.Empty(t, c.directories.paths)
	assert.Nil(t, c.uid)
	assert.Nil(t, c.gid)
	assert.False(t, c.allowDevices)
	assert.False(t, c.allowLocalSockets)
	assert.False(t, c.allowNetwork)
	assert.False(t, c.allowSysctl)
}

func TestConfigurationBuilderChains(t *testing.T) {
	m, err := NewMapping("/usr", "/usr", false)
	require.NoError(t, err)

	c := NewConfiguration().
		AddMapping(m).
		AddSoftLink(SoftLink{Target: "/lib64", LinkPath: "usr/lib64"}).
		AddDirectory("/tmp/scratch").
		SetUID(1000).
		SetGID(1000).
		AllowDevices(true).
		AllowNetwork(true)

	require.Len(t, c.mappings.Slice(), 1)
	assert.Equal(t, m, c.mappings.Slice()[0])
	require.Len(t, c.softLinks, 1)
	assert.Equal(t, "usr/lib64", c.softLinks[0].LinkPath)
	require.Len(t, c.directories.paths, 1)
	assert.Equal(t, "/tmp/scratch", c.directories.paths[0])
	require.NotNil(t, c.uid)
	assert.EqualValues(t, 1000, *c.uid)
	require.NotNil(t, c.gid)
	assert.EqualValues(t, 1000, *c.gid)
	assert.True(t, c.allowDevices)
	assert.True(t, c.allowNetwork)
	assert.False(t, c.allowSysctl)
}

func TestConfigurationBuilderIsOrderIndependentOnFinalState(t *testing.T) {
	a := NewConfiguration().AllowDevices(true).AllowNetwork(true).SetUID(42)
	b := NewConfiguration().SetUID(42).AllowNetwork(true).AllowDevices(true)

	assert.Equal(t, a.allowDevices, b.allowDevices)
	assert.Equal(t, a.allowNetwork, b.allowNetwork)
	assert.Equal(t, *a.uid, *b.uid)
}

func TestConfigurationClearMappings(t *testing.T) {
	m, err := NewMapping("/usr", "/usr", false)
	require.NoError(t, err)

	c := NewConfiguration().AddMapping(m).ClearMappings()
	assert.Empty(t, c.mappings.Slice())
}

func TestConfigurationAddMappingsAndDirectoriesBulk(t *testing.T) {
	m1, _ := NewMapping("/a", "/host/a", false)
	m2, _ := NewMapping("/b", "/host/b", true)

	c := NewConfiguration().
		AddMappings([]Mapping{m1, m2}).
		AddDirectories([]string{"/x", "/y"}).
		AddSoftLinks([]SoftLink{{Target: "/t1", LinkPath: "l1"}, {Target: "/t2", LinkPath: "l2"}})

	assert.Len(t, c.mappings.Slice(), 2)
	assert.Equal(t, []string{"/x", "/y"}, c.directories.paths)
	require.Len(t, c.softLinks, 2)
	assert.Equal(t, "l2", c.softLinks[1].LinkPath)
}
