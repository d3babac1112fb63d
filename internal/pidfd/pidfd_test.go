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

package pidfd

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// TestOpenAndSendSignalZeroOnSelf exercises pidfd_open/pidfd_send_signal
// against the test process's own pid. Signal 0 performs no signal delivery,
// only the existence check, so this is safe to run unprivileged.
func TestOpenAndSendSignalZeroOnSelf(t *testing.T) {
	fd, err := Open(os.Getpid())
	if err != nil {
		t.Skipf("pidfd_open unsupported on this kernel: %v", err)
	}
	defer fd.Close()

	if err := fd.SendSignal(unix.Signal(0)); err != nil {
		t.Errorf("SendSignal(0) on self: %v", err)
	}
}

func TestOpenRejectsNonexistentPid(t *testing.T) {
	// A pid this large cannot exist; pidfd_open should fail with ESRCH.
	if _, err := Open(1 << 30); err == nil {
		t.Error("Open(1<<30): want error for nonexistent pid")
	}
}
