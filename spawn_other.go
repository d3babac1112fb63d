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

//go:build !linux && !darwin
// +build !linux,!darwin

package bastille

import "runtime"

// spawnOS is the dispatch target on platforms with no sandbox driver. There
// is no cross-platform fallback: Linux uses namespaces and macOS uses its
// kernel sandbox plus a FUSE overlay, and neither translates meaningfully
// to other kernels.
func spawnOS(cfg *Configuration, mappings *MappingSet, cmd *Cmd) (*Child, error) {
	return nil, newError(ErrPrecondition, "bastille: unsupported platform %s/%s", runtime.GOOS, runtime.GOARCH)
}
