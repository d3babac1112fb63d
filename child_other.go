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

//go:build !linux
// +build !linux

package bastille

import "golang.org/x/sys/unix"

// signalChild delivers sig by pid. pidfd_send_signal has no equivalent
// outside Linux, so fd is always -1 on this platform.
func signalChild(pid uint32, fd int32, sig unix.Signal) error {
	return unix.Kill(int(pid), sig)
}
