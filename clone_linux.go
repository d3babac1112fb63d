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

package bastille

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// computeCloneFlags assembles the namespace set for Phase P2: a mount and
// user namespace always, plus a PID namespace unless sysctl/process-table
// visibility is allowed, plus a network namespace unless full networking is
// allowed.
func computeCloneFlags(cfg *Configuration) uintptr {
	flags := uintptr(unix.SIGCHLD) | unix.CLONE_NEWNS | unix.CLONE_NEWUSER

	if !cfg.allowSysctl {
		flags |= unix.CLONE_NEWPID
	}
	if !cfg.allowNetwork {
		flags |= unix.CLONE_NEWNET
	}

	return flags
}

// checkUserNamespacePrecondition verifies the two conditions Phase P2
// requires before calling clone: that this kernel exposes user namespaces
// at all, and that the admin hasn't disabled them via sysctl.
func checkUserNamespacePrecondition() error {
	if _, err := os.Stat("/proc/self/ns/user"); err != nil {
		return wrapError(ErrPrecondition, err, "user namespaces unsupported on this kernel")
	}

	data, err := os.ReadFile("/proc/sys/user/max_user_namespaces")
	if err != nil {
		// Some kernels omit this knob entirely when namespaces are
		// unconditionally enabled; absence is not itself a failure.
		return nil
	}

	max, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return wrapError(ErrPrecondition, err, "parse max_user_namespaces")
	}
	if max == 0 {
		return newError(ErrPrecondition, "user namespaces disabled (max_user_namespaces=0)")
	}

	return nil
}

// syncPipe is a one-byte handshake channel across the clone: the parent
// signals the child once credential maps are written and its own
// privileges are dropped. It carries no message in the other direction.
type syncPipe struct {
	r, w *os.File
}

func newSyncPipe() (*syncPipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, wrapError(ErrSystem, err, "create sync pipe")
	}
	return &syncPipe{r: r, w: w}, nil
}

func (p *syncPipe) closeRead()  { p.r.Close() }
func (p *syncPipe) closeWrite() { p.w.Close() }

// wait blocks until a single byte arrives, retrying on EINTR.
func (p *syncPipe) wait() error {
	buf := make([]byte, 1)
	for {
		_, err := p.r.Read(buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return wrapError(ErrSystem, err, "read sync pipe")
		}
		return nil
	}
}

// signal writes a single byte, waking the peer blocked in wait.
func (p *syncPipe) signal() error {
	_, err := p.w.Write([]byte{0})
	if err != nil {
		return wrapError(ErrSystem, err, "write sync pipe")
	}
	return nil
}

// rawClone invokes the clone(2) syscall directly rather than through
// os/exec, since the sandbox driver's child continues executing this same
// Go binary's code (not a freshly exec'd image) until Phase P4 reaches its
// own exec call. It returns twice, like fork(2): 0 in the new child, the
// child's pid in the caller.
func rawClone(flags uintptr) (pid int, err error) {
	r1, _, errno := syscall.Syscall6(uintptr(unix.SYS_CLONE), flags, 0, 0, 0, 0, 0)
	if errno != 0 {
		return -1, errno
	}
	return int(r1), nil
}
