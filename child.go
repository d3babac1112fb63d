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
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ExitStatus is the terminal status of a Child, cached the first time it is
// observed so that repeated Wait/TryWait calls are idempotent.
type ExitStatus struct {
	// Code is the exit code when the process exited normally.
	Code int
	// Signal is the signal that terminated the process, or 0 if it exited
	// normally.
	Signal unix.Signal
}

// Success reports whether the process exited normally with code 0.
func (s ExitStatus) Success() bool {
	return s.Signal == 0 && s.Code == 0
}

// Child is the handle returned by Spawn. It tracks the sandboxed process's
// PID, its optional stdio streams, and a cached terminal exit status so
// repeated waits are safe.
type Child struct {
	pid uint32
	// pidfd is a race-free handle on the child obtained via pidfd_open(2)
	// right after it was created, or -1 if unavailable (non-Linux, or a
	// pre-5.3 kernel). Kill prefers signaling through it over raw kill(2)
	// so it can never land on an unrelated process that reused c.pid.
	pidfd int32

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	mu     sync.Mutex
	status *ExitStatus
}

func newChild(pid int, stdin, stdout, stderr *os.File) *Child {
	return &Child{
		pid:    uint32(pid),
		pidfd:  -1,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	}
}

// setPidfd attaches a pidfd obtained by the platform spawn driver for use by
// Kill. It is a no-op once the child's status has already been cached.
func (c *Child) setPidfd(fd int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != nil {
		return
	}
	c.pidfd = fd
}

// ID returns the process id of the sandboxed child.
func (c *Child) ID() uint32 {
	return c.pid
}

// closeStdin closes the child's stdin to avoid deadlocking a peer that's
// blocked reading for EOF; it is always the first step of Wait.
func (c *Child) closeStdin() {
	if c.Stdin != nil {
		c.Stdin.Close()
		c.Stdin = nil
	}
}

// Wait closes stdin, then blocks until the child exits (retrying on
// EINTR), caching and returning its terminal status. A cached status short
// circuits the syscall on subsequent calls.
func (c *Child) Wait() (ExitStatus, error) {
	c.closeStdin()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != nil {
		return *c.status, nil
	}

	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(int(c.pid), &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return ExitStatus{}, wrapError(ErrSystem, err, "wait4 pid %d", c.pid)
		}
		break
	}

	status := statusFromWaitStatus(ws)
	c.status = &status
	return status, nil
}

// TryWait behaves like Wait but does not block: it returns (status, true,
// nil) if the child has already exited, or (ExitStatus{}, false, nil) if it
// is still running. A cached status is returned without a syscall.
func (c *Child) TryWait() (status ExitStatus, exited bool, err error) {
	c.closeStdin()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != nil {
		return *c.status, true, nil
	}

	var ws unix.WaitStatus
	for {
		pid, werr := unix.Wait4(int(c.pid), &ws, unix.WNOHANG, nil)
		if werr == unix.EINTR {
			continue
		}
		if werr != nil {
			return ExitStatus{}, false, wrapError(ErrSystem, werr, "wait4 pid %d", c.pid)
		}
		if pid == 0 {
			return ExitStatus{}, false, nil
		}
		break
	}

	status = statusFromWaitStatus(ws)
	c.status = &status
	return status, true, nil
}

// Kill delivers SIGKILL to the child. It rejects with ErrExited if the
// child's terminal status is already cached, since the process is already
// gone and the pid may have been recycled. Where a pidfd is available (see
// setPidfd), the signal is delivered through it instead of by pid, so it
// cannot be misdelivered to a different process.
func (c *Child) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != nil {
		return ErrExited
	}

	if err := signalChild(c.pid, c.pidfd, unix.SIGKILL); err != nil {
		return wrapError(ErrSystem, err, "kill pid %d", c.pid)
	}
	return nil
}

// Output is the combined result of WaitWithOutput.
type Output struct {
	Status ExitStatus
	Stdout []byte
	Stderr []byte
}

// WaitWithOutput closes stdin, drains stdout then stderr to EOF, and waits
// for the child to exit. Draining is sequential, not concurrent: a child
// that fills its stderr pipe before bastille starts reading stdout can
// deadlock. This mirrors a known limitation of the original implementation
// and is not papered over here.
func (c *Child) WaitWithOutput() (Output, error) {
	c.closeStdin()

	var out Output
	var err error

	if c.Stdout != nil {
		out.Stdout, err = io.ReadAll(c.Stdout)
		if err != nil {
			return out, wrapError(ErrSystem, err, "read stdout")
		}
	}

	if c.Stderr != nil {
		out.Stderr, err = io.ReadAll(c.Stderr)
		if err != nil {
			return out, wrapError(ErrSystem, err, "read stderr")
		}
	}

	out.Status, err = c.Wait()
	return out, err
}

func statusFromWaitStatus(ws unix.WaitStatus) ExitStatus {
	if ws.Signaled() {
		return ExitStatus{Signal: ws.Signal()}
	}
	return ExitStatus{Code: ws.ExitStatus()}
}
