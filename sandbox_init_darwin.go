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

//go:build darwin && cgo
// +build darwin,cgo

package bastille

// #include <sandbox.h>
// #include <stdlib.h>
import "C"

import "unsafe"

// applySandboxProfile calls the kernel's sandbox_init(3) with profile as an
// inline Scheme-syntax document (SANDBOX_NAMED is not used; the profile text
// itself is the "name"). On failure the returned diagnostic buffer is freed
// exactly once, mirroring libsandbox's documented ownership contract.
func applySandboxProfile(profile string) error {
	cProfile := C.CString(profile)
	defer C.free(unsafe.Pointer(cProfile))

	var cErr *C.char
	rc := C.sandbox_init(cProfile, C.uint64_t(0), &cErr)
	if rc != 0 {
		msg := "sandbox_init failed"
		if cErr != nil {
			msg = C.GoString(cErr)
			C.sandbox_free_error(cErr)
		}
		return newError(ErrSandboxInit, "%s", msg)
	}

	return nil
}
