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
	"os"

	"golang.org/x/sys/unix"
)

// Cmd is the prepared command handed to Spawn: an executable path, its
// arguments, environment, and optional preconfigured stdio. Spawn performs
// the exec-family call itself once the sandbox is constructed; Cmd only
// describes what to run and how its streams are wired.
//
// Unlike os/exec.Cmd, Cmd carries raw *os.File stdio endpoints rather than
// an io.Reader/io.Writer abstraction, since the sandbox driver needs to pass
// the child's end of a pipe across clone/fork boundaries.
type Cmd struct {
	// Path is the executable to exec inside the sandbox. It is resolved
	// against the sandbox's view of the filesystem, not the caller's.
	Path string

	// Args is the argv passed to exec, including argv[0].
	Args []string

	// Env is the environment passed to exec. If nil, the sandboxed process
	// inherits no environment beyond what Spawn sets (e.g. PWD).
	Env []string

	// Stdin, Stdout, Stderr are optional preconfigured stdio. For each one
	// left nil, Spawn creates an anonymous pipe and attaches its
	// parent-facing end to the returned Child.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// childStdio holds the three *os.File ends that belong to the child after
// the clone/fork, kept separate from the parent-facing ends returned in
// Child so the parent can close its copies once the handoff finishes. Both
// the Linux and macOS drivers build one of these via resolveStdio.
type childStdio struct {
	stdin, stdout, stderr *os.File
}

func closeChildEnds(c *childStdio) {
	if c.stdin != nil {
		c.stdin.Close()
	}
	if c.stdout != nil {
		c.stdout.Close()
	}
	if c.stderr != nil {
		c.stderr.Close()
	}
}

// resolveStdio returns the parent-facing stdio files for the returned
// Child, plus the corresponding child-facing files to attach after the
// clone/fork. When cmd already supplies a stream, no pipe is created for it:
// the child end is cmd's *os.File and the parent-facing end is nil.
func resolveStdio(cmd *Cmd) (parentStdin, parentStdout, parentStderr *os.File, child *childStdio, err error) {
	child = &childStdio{}

	if cmd.Stdin != nil {
		child.stdin = cmd.Stdin
	} else {
		r, w, perr := os.Pipe()
		if perr != nil {
			return nil, nil, nil, nil, wrapError(ErrSystem, perr, "create stdin pipe")
		}
		child.stdin, parentStdin = r, w
	}

	if cmd.Stdout != nil {
		child.stdout = cmd.Stdout
	} else {
		r, w, perr := os.Pipe()
		if perr != nil {
			return nil, nil, nil, nil, wrapError(ErrSystem, perr, "create stdout pipe")
		}
		child.stdout, parentStdout = w, r
	}

	if cmd.Stderr != nil {
		child.stderr = cmd.Stderr
	} else {
		r, w, perr := os.Pipe()
		if perr != nil {
			return nil, nil, nil, nil, wrapError(ErrSystem, perr, "create stderr pipe")
		}
		child.stderr, parentStderr = w, r
	}

	return parentStdin, parentStdout, parentStderr, child, nil
}

// attachStdio dup2s the child's stdio ends onto fds 0/1/2, in the new
// process image just before exec. Shared by both platform drivers.
func attachStdio(io *childStdio) {
	if io.stdin != nil {
		unix.Dup2(int(io.stdin.Fd()), 0)
	}
	if io.stdout != nil {
		unix.Dup2(int(io.stdout.Fd()), 1)
	}
	if io.stderr != nil {
		unix.Dup2(int(io.stderr.Fd()), 2)
	}
}
