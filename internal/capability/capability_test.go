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

package capability

import "testing"

func TestSetGetSetClearRoundtrip(t *testing.T) {
	s := &Set{}

	if s.Get(Effective, CAP_SYS_ADMIN) {
		t.Fatal("zero-value Set should report no capabilities")
	}

	s.Set(Effective|Permitted, CAP_SYS_ADMIN, CAP_SYS_CHROOT)

	if !s.Get(Effective, CAP_SYS_ADMIN) {
		t.Error("CAP_SYS_ADMIN should be set in Effective")
	}
	if !s.Get(Permitted, CAP_SYS_CHROOT) {
		t.Error("CAP_SYS_CHROOT should be set in Permitted")
	}
	if s.Get(Inheritable, CAP_SYS_ADMIN) {
		t.Error("CAP_SYS_ADMIN should not be set in Inheritable")
	}

	s.Clear(Effective)
	if s.Get(Effective, CAP_SYS_ADMIN) {
		t.Error("Clear(Effective) should remove CAP_SYS_ADMIN from Effective")
	}
	if !s.Get(Permitted, CAP_SYS_ADMIN) {
		t.Error("Clear(Effective) should not affect Permitted")
	}
}

func TestSetHandlesCapsAboveBitIndex31(t *testing.T) {
	s := &Set{}

	// CAP_AUDIT_READ (37) and CAP_CHECKPOINT_RESTORE (40) both live in the
	// second 32-bit capability word.
	s.Set(Bounding, CAP_AUDIT_READ, CAP_CHECKPOINT_RESTORE)

	if !s.Get(Bounding, CAP_AUDIT_READ) {
		t.Error("CAP_AUDIT_READ should be set")
	}
	if !s.Get(Bounding, CAP_CHECKPOINT_RESTORE) {
		t.Error("CAP_CHECKPOINT_RESTORE should be set")
	}
	if s.Get(Bounding, CAP_BPF) {
		t.Error("CAP_BPF should not be set")
	}
}

func TestBitIndexSplitsAtWord31(t *testing.T) {
	word, bit := bitIndex(CAP_CHOWN)
	if word != 0 || bit != 0 {
		t.Errorf("bitIndex(CAP_CHOWN) = (%d, %d), want (0, 0)", word, bit)
	}

	word, bit = bitIndex(CAP_AUDIT_READ)
	if word != 1 || bit != 5 {
		t.Errorf("bitIndex(CAP_AUDIT_READ) = (%d, %d), want (1, 5)", word, bit)
	}
}
