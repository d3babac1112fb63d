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

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ebkalderon/bastille/internal/pidfd"
)

// spawnOS is the Linux driver's entry point. It runs Phases P1-P4 from the
// construction protocol: acquire and scope down privileges, open the pipes
// the child needs, clone into new namespaces, and have each side of the
// clone finish its half of the handshake.
//
// The child branch below never returns to its caller: it either execs cmd
// or calls os.Exit on failure, exactly like fork(2)'s child branch. Because
// CLONE_NEWNS|CLONE_NEWUSER is requested without CLONE_VM, the clone(2) call
// duplicates the address space the same way fork does, so running Go code
// in both branches of the same goroutine is safe.
func spawnOS(cfg *Configuration, mappings *MappingSet, cmd *Cmd) (*Child, error) {
	logrus.Debugf("bastille: linux driver: phase P1: acquiring privileges")
	ctx, err := acquirePrivileges()
	if err != nil {
		return nil, err
	}
	if err := readOverflowIDs(ctx); err != nil {
		return nil, err
	}
	if err := openProcDir(ctx); err != nil {
		return nil, err
	}
	computeSandboxIdentity(ctx, cfg)

	if err := checkUserNamespacePrecondition(); err != nil {
		return nil, err
	}

	stdin, stdout, stderr, childIO, err := resolveStdio(cmd)
	if err != nil {
		return nil, err
	}

	readyPipe, err := newSyncPipe()
	if err != nil {
		return nil, err
	}

	flags := computeCloneFlags(cfg)

	logrus.Debugf("bastille: linux driver: phase P2: clone(flags=%#x)", flags)
	pid, err := rawClone(flags)
	if err != nil {
		return nil, wrapError(ErrSystem, err, "clone")
	}

	if pid == 0 {
		readyPipe.closeWrite()
		runChild(ctx, cfg, mappings, cmd, childIO, readyPipe)
		// runChild never returns.
		os.Exit(127)
	}

	logrus.Debugf("bastille: linux driver: phase P3: parent post-clone, child pid=%d", pid)
	readyPipe.closeRead()

	// Grab a pidfd while the pid is still guaranteed to refer to the child
	// we just created, so a later Kill can't be misdelivered to a reused
	// pid. Unavailable on pre-5.3 kernels; Kill falls back to kill(2) then.
	childPidfd := int32(-1)
	if fd, err := pidfd.Open(pid); err == nil {
		childPidfd = int32(fd)
	}

	if ctx.privileged {
		if err := writeCredentials(pid, ctx.sandboxUID, ctx.sandboxGID, ctx.realUID, ctx.realGID,
			ctx.overflowUID, ctx.overflowGID, true, true); err != nil {
			unix.Kill(pid, unix.SIGKILL)
			return nil, err
		}
	}

	if err := dropPrivileges(false); err != nil {
		unix.Kill(pid, unix.SIGKILL)
		return nil, err
	}

	if err := readyPipe.signal(); err != nil {
		unix.Kill(pid, unix.SIGKILL)
		return nil, err
	}
	readyPipe.closeWrite()

	closeChildEnds(childIO)

	logrus.Debugf("bastille: linux driver: spawn complete, child pid=%d", pid)
	child := newChild(pid, stdin, stdout, stderr)
	child.setPidfd(childPidfd)
	return child, nil
}

// runChild is Phase P4: the construction steps that run inside the new
// namespaces, ending in an exec of cmd. It does not return: on any setup
// failure it calls os.Exit(126) itself, printing nothing (the caller owns
// stdio), and a failed exec exits with 127.
func runChild(ctx *linuxContext, cfg *Configuration, mappings *MappingSet, cmd *Cmd, io *childStdio, ready *syncPipe) {
	unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGKILL), 0, 0, 0)

	if err := ready.wait(); err != nil {
		os.Exit(126)
	}
	ready.closeRead()

	logrus.Debugf("bastille: linux driver: phase P4: child post-clone setup")
	if err := switchToUserWithPrivs(ctx); err != nil {
		os.Exit(126)
	}

	if !cfg.allowNetwork {
		if err := bringUpLoopback(); err != nil {
			os.Exit(126)
		}
	}

	// Step 5: when unprivileged, the child authors its own map using a
	// temporary 0<->0 identity so that later in-namespace operations (e.g.
	// mounting devpts) that expect namespace-root succeed, rather than
	// mapping straight to the final sandbox identity.
	nsUID, nsGID := ctx.sandboxUID, ctx.sandboxGID
	if !ctx.privileged {
		nsUID, nsGID = 0, 0
		if err := writeCredentials(os.Getpid(), nsUID, nsGID, ctx.realUID, ctx.realGID,
			ctx.overflowUID, ctx.overflowGID, false, true); err != nil {
			os.Exit(126)
		}
	}

	oldMask := unix.Umask(0)

	pwd, err := buildRoot(cfg, mappings)
	if err != nil {
		unix.Umask(oldMask)
		os.Exit(126)
	}

	// Step 8: if the temporary identity doesn't match the desired one,
	// unshare a fresh user namespace and rewrite the map with no root hack.
	if !ctx.privileged && (nsUID != ctx.sandboxUID || nsGID != ctx.sandboxGID) {
		if err := unix.Unshare(unix.CLONE_NEWUSER); err != nil {
			unix.Umask(oldMask)
			os.Exit(126)
		}
		if err := writeCredentials(os.Getpid(), ctx.sandboxUID, ctx.sandboxGID, ctx.realUID, ctx.realGID,
			ctx.overflowUID, ctx.overflowGID, false, false); err != nil {
			unix.Umask(oldMask)
			os.Exit(126)
		}
	}

	unix.Umask(oldMask)

	if err := dropPrivileges(!ctx.privileged); err != nil {
		os.Exit(126)
	}

	if !ctx.privileged {
		if err := raiseRequiredAmbient(); err != nil {
			os.Exit(126)
		}
	}

	attachStdio(io)

	env := cmd.Env
	if env == nil {
		env = []string{}
	}
	env = append(env, "PWD="+pwd)

	logrus.Debugf("bastille: linux driver: exec %s", cmd.Path)
	if err := unix.Exec(cmd.Path, cmd.Args, env); err != nil {
		os.Exit(127)
	}
}
