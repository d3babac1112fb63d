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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMappingAcceptsNormalizedAbsolutePaths(t *testing.T) {
	cases := []string{"/", "/usr", "/usr/lib64", "/a/b/c"}

	for _, sandbox := range cases {
		m, err := NewMapping(sandbox, "/host", true)
		require.NoError(t, err, sandbox)
		assert.Equal(t, sandbox, m.SandboxPath)
		assert.Equal(t, "/host", m.HostPath)
		assert.True(t, m.Writable)
	}
}

func TestNewMappingRejectsRelativePath(t *testing.T) {
	_, err := NewMapping("foo/bar", "/host", false)
	require.Error(t, err)

	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, ErrNotAbsolute, berr.Kind)
}

func TestNewMappingRejectsParentDirComponent(t *testing.T) {
	_, err := NewMapping("/usr/../etc", "/host", false)
	require.Error(t, err)

	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, ErrNotNormalized, berr.Kind)
}

func TestNewMappingAcceptsDotComponentsAndKeepsPathVerbatim(t *testing.T) {
	m, err := NewMapping("/./usr/./lib", "/host", false)
	require.NoError(t, err)
	assert.Equal(t, "/./usr/./lib", m.SandboxPath)
}

func TestMappingSetPreservesInsertionOrderAndStacks(t *testing.T) {
	s := NewMappingSet()

	a, err := NewMapping("/usr", "/host/usr", true)
	require.NoError(t, err)
	b, err := NewMapping("/usr", "/host/usr-override", false)
	require.NoError(t, err)

	s.Append(a)
	s.Append(b)

	got := s.Slice()
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0])
	assert.Equal(t, b, got[1])
}

func TestMappingSetExtendAndClear(t *testing.T) {
	s := NewMappingSet()

	m1, _ := NewMapping("/a", "/host/a", false)
	m2, _ := NewMapping("/b", "/host/b", false)
	s.Extend([]Mapping{m1, m2})
	assert.Len(t, s.Slice(), 2)

	s.Clear()
	assert.Empty(t, s.Slice())
}

func TestMappingSetClearThenResolveSymlinksYieldsEmpty(t *testing.T) {
	s := NewMappingSet()
	m, _ := NewMapping("/a", "/tmp", false)
	s.Append(m)
	s.Clear()

	resolved, err := s.ResolveSymlinks()
	require.NoError(t, err)
	assert.Empty(t, resolved.Slice())
}

func TestMappingSetResolveSymlinksCanonicalizesHostPath(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(target, 0755))

	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	s := NewMappingSet()
	m, err := NewMapping("/sandbox", link, true)
	require.NoError(t, err)
	s.Append(m)

	resolved, err := s.ResolveSymlinks()
	require.NoError(t, err)

	got := resolved.Slice()
	require.Len(t, got, 1)
	assert.Equal(t, target, got[0].HostPath)
	assert.Equal(t, "/sandbox", got[0].SandboxPath)
}

func TestMappingSetResolveSymlinksFailsOnMissingHostPath(t *testing.T) {
	s := NewMappingSet()
	m, err := NewMapping("/sandbox", "/this/path/does/not/exist", false)
	require.NoError(t, err)
	s.Append(m)

	_, err = s.ResolveSymlinks()
	require.Error(t, err)

	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, ErrFilesystem, berr.Kind)
}
