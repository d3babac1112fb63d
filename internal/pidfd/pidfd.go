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

//go:build linux
// +build linux

// Package pidfd wraps pidfd_open(2) and pidfd_send_signal(2), giving callers
// a way to signal a process without racing a recycled pid.
//
// pidfd_send_signal() --> kernel 5.1+
// pidfd_open()        --> kernel 5.3+
package pidfd

import "golang.org/x/sys/unix"

const (
	sysPidfdSendSignal = 424
	sysPidfdOpen       = 434
)

// FD is a file descriptor that refers to a process rather than a pid, so it
// cannot be redirected to a different process once that process exits.
type FD int32

// Open obtains a pidfd for the given pid. Callers should do this immediately
// after learning the pid (e.g. right after fork/clone returns), while it is
// still guaranteed to refer to the process they just created.
func Open(pid int) (FD, error) {
	fd, _, errno := unix.Syscall(sysPidfdOpen, uintptr(pid), 0, 0)
	if errno != 0 {
		return -1, errno
	}
	return FD(fd), nil
}

// SendSignal delivers signal to the process the pidfd refers to. Unlike
// kill(2), this cannot accidentally land on an unrelated process that has
// since reused the pid.
func (fd FD) SendSignal(signal unix.Signal) error {
	_, _, errno := unix.Syscall6(sysPidfdSendSignal, uintptr(fd), uintptr(signal), 0, 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// Close releases the pidfd.
func (fd FD) Close() error {
	return unix.Close(int(fd))
}
