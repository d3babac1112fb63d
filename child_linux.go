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
	"golang.org/x/sys/unix"

	"github.com/ebkalderon/bastille/internal/pidfd"
)

// signalChild prefers signaling through fd (a pidfd) when one was obtained
// at spawn time, falling back to kill(2) by pid on older kernels that don't
// support pidfd_send_signal.
func signalChild(pid uint32, fd int32, sig unix.Signal) error {
	if fd >= 0 {
		if err := pidfd.FD(fd).SendSignal(sig); err != unix.ENOSYS {
			return err
		}
	}
	return unix.Kill(int(pid), sig)
}
