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

//go:build darwin
// +build darwin

package bastille

import (
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// livenessPollInterval is the fixed granularity the FS process uses to poll
// for its sandbox sibling's liveness, matching spec.md's documented 10ms
// cancellation-free polling loop.
const livenessPollInterval = 10 * time.Millisecond

// spawnOS is the macOS driver's entry point. There's no namespace model on
// this platform: isolation comes from chrooting into a FUSE overlay (built
// from the resolved mappings) plus the kernel's own sandbox profile.
//
// It forks twice. The first fork's child becomes the sandbox process (it
// eventually execs cmd); the first fork's parent ("launcher") forks again,
// and that second fork's child becomes the FS process driving the overlay.
// The launcher returns a Child tracking the sandbox process's pid; the FS
// process is never exposed to the caller; it tears itself down once its
// sibling exits.
func spawnOS(cfg *Configuration, mappings *MappingSet, cmd *Cmd) (*Child, error) {
	sandboxUID := uint32(unix.Getuid())
	sandboxGID := uint32(unix.Getgid())
	if cfg.uid != nil {
		sandboxUID = *cfg.uid
	}
	if cfg.gid != nil {
		sandboxGID = *cfg.gid
	}

	root, err := os.MkdirTemp("", "bastille-"+uuid.New().String())
	if err != nil {
		return nil, wrapError(ErrFilesystem, err, "create private temp dir")
	}
	if err := unix.Chown(root, int(sandboxUID), int(sandboxGID)); err != nil {
		return nil, wrapError(ErrFilesystem, err, "chown temp dir to sandbox identity")
	}

	sigR, sigW, err := os.Pipe()
	if err != nil {
		return nil, wrapError(ErrSystem, err, "create sibling-ready pipe")
	}

	stdin, stdout, stderr, childIO, err := resolveStdio(cmd)
	if err != nil {
		return nil, err
	}

	logrus.Debugf("bastille: macos driver: first fork (sandbox process)")
	sandboxPid, err := rawFork()
	if err != nil {
		return nil, wrapError(ErrSystem, err, "fork sandbox process")
	}

	if sandboxPid == 0 {
		sigW.Close()
		runSandboxProcess(cfg, cmd, root, sandboxUID, sandboxGID, childIO, sigR)
		os.Exit(127)
	}

	sigR.Close()
	closeChildEnds(childIO)

	logrus.Debugf("bastille: macos driver: second fork (fs process)")
	fsPid, err := rawFork()
	if err != nil {
		unix.Kill(sandboxPid, unix.SIGKILL)
		return nil, wrapError(ErrSystem, err, "fork fs process")
	}

	if fsPid == 0 {
		runFSProcess(root, sandboxGID, mappings, sandboxPid, sigW)
		os.Exit(0)
	}

	sigW.Close()

	logrus.Debugf("bastille: macos driver: spawn complete, sandbox pid=%d, fs pid=%d", sandboxPid, fsPid)
	return newChild(sandboxPid, stdin, stdout, stderr), nil
}

// rawFork invokes fork(2) directly, mirroring the Linux driver's rawClone:
// both branches continue running this same process image rather than
// execing a fresh one, down to the point each reaches its own exec or exit.
func rawFork() (pid int, err error) {
	r1, _, errno := syscall.RawSyscall(syscall.SYS_FORK, 0, 0, 0)
	if errno != 0 {
		return -1, errno
	}
	return int(r1), nil
}

// runSandboxProcess is the "First fork" branch (§4.6 step 4): it blocks for
// the FS process's ready signal, chroots into the overlay, drops to the
// sandbox identity, applies the sandbox profile, and execs cmd.
func runSandboxProcess(cfg *Configuration, cmd *Cmd, root string, uid, gid uint32, io *childStdio, ready *os.File) {
	buf := make([]byte, 1)
	for {
		_, err := ready.Read(buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			os.Exit(126)
		}
		break
	}
	ready.Close()

	prevEuid := unix.Geteuid()
	if err := unix.Seteuid(0); err != nil {
		os.Exit(126)
	}
	if err := unix.Chroot(root + "/mnt"); err != nil {
		os.Exit(126)
	}
	if err := os.Chdir("/"); err != nil {
		os.Exit(126)
	}
	if err := unix.Seteuid(prevEuid); err != nil {
		os.Exit(126)
	}

	if err := unix.Setgid(int(gid)); err != nil {
		os.Exit(126)
	}
	if err := unix.Setuid(int(uid)); err != nil {
		os.Exit(126)
	}

	profile := buildSandboxProfile(cfg)
	if err := applySandboxProfile(profile); err != nil {
		os.Exit(126)
	}

	attachStdio(io)

	env := cmd.Env
	if env == nil {
		env = []string{}
	}

	if err := unix.Exec(cmd.Path, cmd.Args, env); err != nil {
		os.Exit(127)
	}
}

// runFSProcess is the "Second fork" branch (§4.6 step 3): it drives the
// overlay controller, signals the sandbox sibling once mounted, then polls
// the sibling's liveness until it exits, unmounting before it exits itself.
func runFSProcess(root string, gid uint32, mappings *MappingSet, sandboxPid int, ready *os.File) {
	oc, err := startOverlay(root, gid)
	if err != nil {
		os.Exit(1)
	}

	if err := oc.mount(mappings); err != nil {
		oc.close()
		os.Exit(1)
	}

	ready.Write([]byte{0})
	ready.Close()

	for {
		err := unix.Kill(sandboxPid, 0)
		if err == unix.ESRCH {
			break
		}
		// EPERM (or nil) both mean the sibling is still alive: either we
		// lack permission to signal it (distinct uid after setuid) or the
		// signal was accepted.
		time.Sleep(livenessPollInterval)
	}

	oc.unmount(mappings)
	oc.close()
	unmountFilesystem(oc.mountPoint)
}
