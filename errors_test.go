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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindString(t *testing.T) {
	cases := map[ErrorKind]string{
		ErrNotAbsolute:     "not-absolute",
		ErrNotNormalized:   "not-normalized",
		ErrPrecondition:    "precondition",
		ErrPrivilege:       "privilege",
		ErrFilesystem:      "filesystem",
		ErrCredential:      "credential",
		ErrOverlay:         "overlay",
		ErrSandboxInit:     "sandbox-init",
		ErrInvalidArgument: "invalid-argument",
		ErrSystem:          "system",
	}

	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestErrorIsComparesKindNotCause(t *testing.T) {
	e1 := newError(ErrNotAbsolute, "path %q", "/foo")
	e2 := newError(ErrNotAbsolute, "a completely different message")

	assert.True(t, errors.Is(e1, e2))
	assert.False(t, errors.Is(e1, newError(ErrFilesystem, "whatever")))
}

func TestWrapErrorPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	wrapped := wrapError(ErrFilesystem, cause, "mount %s", "/dev/null")

	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "underlying failure")
	assert.Contains(t, wrapped.Error(), "filesystem")
}

func TestErrExitedIsInvalidArgument(t *testing.T) {
	assert.Equal(t, ErrInvalidArgument, ErrExited.Kind)
}
