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
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Mapping binds a sandbox-side path to a host-side path, with a flag
// controlling whether the sandbox may write through it.
type Mapping struct {
	SandboxPath string
	HostPath    string
	Writable    bool
}

// NewMapping validates sandbox and constructs a Mapping. The host path is
// stored verbatim; it is not required to be absolute or to exist yet, since
// it is only canonicalized later by ResolveSymlinks.
func NewMapping(sandbox, host string, writable bool) (Mapping, error) {
	if err := validateSandboxPath(sandbox); err != nil {
		return Mapping{}, err
	}
	return Mapping{SandboxPath: sandbox, HostPath: host, Writable: writable}, nil
}

// validateSandboxPath enforces the normalization rule from the data model:
// the path must be absolute, dot components and empty components (from
// repeated slashes) are skipped during the check, and every remaining
// component after the root must be an ordinary name (no ".."). The path
// itself is not rewritten.
func validateSandboxPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return newError(ErrNotAbsolute, "sandbox path %q is not absolute", path)
	}

	for _, c := range strings.Split(path, "/") {
		if c == "" || c == "." {
			continue
		}
		if c == ".." {
			return newError(ErrNotNormalized, "sandbox path %q contains a parent-dir component", path)
		}
	}

	return nil
}

// MappingSet is an ordered, append-only (except for Clear) sequence of
// Mapping values. Insertion order is preserved; entries are never merged or
// replaced, since later mappings stack as additional mounts rather than
// shadowing earlier ones.
type MappingSet struct {
	mappings []Mapping
}

// NewMappingSet returns an empty MappingSet.
func NewMappingSet() *MappingSet {
	return &MappingSet{}
}

// Append adds a single mapping to the end of the set.
func (s *MappingSet) Append(m Mapping) {
	s.mappings = append(s.mappings, m)
}

// Extend appends every mapping in ms, in order.
func (s *MappingSet) Extend(ms []Mapping) {
	s.mappings = append(s.mappings, ms...)
}

// Clear empties the set.
func (s *MappingSet) Clear() {
	s.mappings = nil
}

// Slice returns the set's mappings as an ordered slice. The returned slice
// must not be mutated by the caller.
func (s *MappingSet) Slice() []Mapping {
	return s.mappings
}

// ResolveSymlinks returns a new MappingSet with every host path replaced by
// its canonical form (all symlinks expanded). It fails on the first mapping
// whose host path cannot be resolved (missing path, I/O error, loop), and
// preserves insertion order on success.
func (s *MappingSet) ResolveSymlinks() (*MappingSet, error) {
	resolved := make([]Mapping, 0, len(s.mappings))

	for _, m := range s.mappings {
		canonical, err := filepath.EvalSymlinks(m.HostPath)
		if err != nil {
			return nil, wrapError(ErrFilesystem, errors.WithStack(err), "resolve host path %q", m.HostPath)
		}

		resolved = append(resolved, Mapping{
			SandboxPath: m.SandboxPath,
			HostPath:    canonical,
			Writable:    m.Writable,
		})
	}

	return &MappingSet{mappings: resolved}, nil
}

// SoftLink declares a symlink to be created inside the sandbox. LinkPath is
// interpreted relative to the new sandbox root; Target is written verbatim
// as the symlink body.
type SoftLink struct {
	Target   string
	LinkPath string
}
