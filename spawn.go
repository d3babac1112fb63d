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

// Package bastille constructs an isolated execution environment for a
// caller-supplied command: a restricted filesystem view, an identity, and a
// permitted kernel surface, on Linux (namespaces) and macOS (kernel sandbox
// plus a FUSE overlay).
package bastille

// Spawn resolves host-side symlinks in cfg's mappings, constructs an
// isolated environment per the current OS's driver, execs cmd inside it, and
// returns a handle tracking its lifecycle. The configuration is read-only
// from this point on.
func Spawn(cfg *Configuration, cmd *Cmd) (*Child, error) {
	resolved, err := cfg.mappings.ResolveSymlinks()
	if err != nil {
		return nil, err
	}
	return spawnOS(cfg, resolved, cmd)
}
