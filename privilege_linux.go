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

	"golang.org/x/sys/unix"

	"github.com/ebkalderon/bastille/internal/capability"
)

// requiredCaps is the minimum capability set the sandbox construction
// sequence itself needs: setting up namespaces, writing credential maps,
// and pivoting the root.
var requiredCaps = []capability.Cap{
	capability.CAP_NET_ADMIN,
	capability.CAP_SETGID,
	capability.CAP_SETUID,
	capability.CAP_SYS_ADMIN,
	capability.CAP_SYS_CHROOT,
	capability.CAP_SYS_PTRACE,
}

// linuxContext carries the process-wide state P1 establishes once per
// spawn, passed explicitly to P2-P4 rather than pinned as package globals,
// so concurrent spawns share only immutable values.
type linuxContext struct {
	realUID, realGID         uint32
	privileged               bool
	requestedCaps            *capability.Set
	overflowUID, overflowGID uint32
	procDir                  *os.File
	sandboxUID, sandboxGID   uint32
}

// acquirePrivileges implements Phase P1 steps 1-2: it records the real
// UID/GID, detects a setuid-root binary, and either drops down to the
// minimum required capability set (privileged case) or verifies the
// process holds no stray capabilities (unprivileged case).
func acquirePrivileges() (*linuxContext, error) {
	ctx := &linuxContext{
		realUID: uint32(unix.Getuid()),
		realGID: uint32(unix.Getgid()),
	}

	euid := unix.Geteuid()

	switch {
	case euid != int(ctx.realUID) && euid == 0:
		ctx.privileged = true

		prev := unix.Setfsuid(int(ctx.realUID))
		_ = prev
		if got := unix.Setfsuid(-1); got != int(ctx.realUID) {
			return nil, newError(ErrPrecondition, "failed to move fsuid to real uid %d (got %d)", ctx.realUID, got)
		}

		s := &capability.Set{}
		if err := s.DropBounding(); err != nil {
			return nil, wrapError(ErrPrivilege, err, "drop capability bounding set")
		}
		s.Set(capability.Permitted|capability.Effective, requiredCaps...)
		s.Clear(capability.Inheritable)
		if err := s.ApplyCaps(); err != nil {
			return nil, wrapError(ErrPrivilege, err, "install required capability set")
		}
		ctx.requestedCaps = s

	case ctx.realUID != 0:
		eff, err := capability.CurrentEffective()
		if err != nil {
			return nil, wrapError(ErrPrecondition, err, "read effective capabilities")
		}
		if eff != 0 {
			return nil, newError(ErrPrecondition, "process holds capabilities without being setuid-root (misconfigured file caps)")
		}

	default: // realUID == 0
		s, err := capability.Load()
		if err != nil {
			return nil, wrapError(ErrPrecondition, err, "load current capabilities")
		}
		ctx.requestedCaps = s
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return nil, wrapError(ErrPrivilege, err, "PR_SET_NO_NEW_PRIVS")
	}

	return ctx, nil
}

// readOverflowIDs is Phase P1 step 3: it reads the kernel's fallback
// identity, substituted when a namespace has no mapping for a uid/gid.
func readOverflowIDs(ctx *linuxContext) error {
	uid, err := readOverflowFile("/proc/sys/kernel/overflowuid")
	if err != nil {
		return err
	}
	gid, err := readOverflowFile("/proc/sys/kernel/overflowgid")
	if err != nil {
		return err
	}
	ctx.overflowUID = uid
	ctx.overflowGID = gid
	return nil
}

func readOverflowFile(path string) (uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, wrapError(ErrPrecondition, err, "read %s", path)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, wrapError(ErrPrecondition, err, "parse %s", path)
	}
	return uint32(v), nil
}

// openProcDir is Phase P1 step 4: it keeps a directory handle on /proc open
// for the lifetime of the spawn, for later credential-map writes.
func openProcDir(ctx *linuxContext) error {
	f, err := os.Open("/proc")
	if err != nil {
		return wrapError(ErrPrecondition, err, "open /proc")
	}
	ctx.procDir = f
	return nil
}

// computeSandboxIdentity is Phase P1 step 5.
func computeSandboxIdentity(ctx *linuxContext, cfg *Configuration) {
	ctx.sandboxUID = ctx.realUID
	ctx.sandboxGID = ctx.realGID
	if cfg.uid != nil {
		ctx.sandboxUID = *cfg.uid
	}
	if cfg.gid != nil {
		ctx.sandboxGID = *cfg.gid
	}
}

// dropPrivileges clears the capability bounding set and overwrites the
// effective/permitted/inheritable sets via capset: empty when keepRequired
// is false (the caller keeps no caps at all), or requiredCaps when true
// (called "drop_privs" in the design: drop_privs(false) drops everything,
// drop_privs(true) keeps the minimum set the sandbox still needs). Used by
// the parent's final privilege drop (P3) and the child's post-setup drop
// (P4 step 9), where overwriting effective/permitted is exactly the point.
//
// It must NOT be used for P4 step 3's "clear bounding set again" — see
// dropCapBoundingSet.
func dropPrivileges(keepRequired bool) error {
	s := &capability.Set{}
	if keepRequired {
		s.Set(capability.Bounding|capability.Permitted|capability.Effective, requiredCaps...)
	}
	if err := s.DropBounding(); err != nil {
		return wrapError(ErrPrivilege, err, "drop capability bounding set")
	}
	if err := s.ApplyCaps(); err != nil {
		return wrapError(ErrPrivilege, err, "apply capability set")
	}
	return nil
}

// dropCapBoundingSet drops the capability bounding set down to keep's
// bounding bits (requested caps), via PR_CAPBSET_DROP only. Unlike
// dropPrivileges, it never calls capset, so it leaves the effective and
// permitted sets exactly as the kernel granted them on entering the new
// user namespace — mirroring the original's drop_cap_bounding_set, which is
// a pure bounding-set loop and never touches capset. keep may be nil,
// meaning "keep nothing in the bounding set".
func dropCapBoundingSet(keep *capability.Set) error {
	if keep == nil {
		keep = &capability.Set{}
	}
	if err := keep.DropBounding(); err != nil {
		return wrapError(ErrPrivilege, err, "drop capability bounding set")
	}
	return nil
}

// switchToUserWithPrivs is Phase P4 step 3: the child clears its bounding
// set again, then (if privileged) sets PR_SET_KEEPCAPS, calls setuid to the
// sandbox identity, and re-raises the required caps as effective+permitted
// (setuid would otherwise clear them).
//
// The bounding-set clear here must not touch effective/permitted: the child
// still needs the capabilities it holds in the new namespace (CAP_SYS_ADMIN
// for the root constructor, CAP_NET_ADMIN for the loopback configurer) for
// every step between here and the final drop at P4 step 9.
func switchToUserWithPrivs(ctx *linuxContext) error {
	if err := dropCapBoundingSet(ctx.requestedCaps); err != nil {
		return err
	}

	if !ctx.privileged {
		return nil
	}

	if err := unix.Prctl(unix.PR_SET_KEEPCAPS, 1, 0, 0, 0); err != nil {
		return wrapError(ErrPrivilege, err, "PR_SET_KEEPCAPS")
	}

	if err := unix.Setuid(int(ctx.sandboxUID)); err != nil {
		return wrapError(ErrPrivilege, err, "setuid %d", ctx.sandboxUID)
	}

	s := &capability.Set{}
	s.Set(capability.Permitted|capability.Effective, requiredCaps...)
	if err := s.ApplyCaps(); err != nil {
		return wrapError(ErrPrivilege, err, "re-raise required capabilities after setuid")
	}

	return nil
}

// raiseRequiredAmbient is Phase P4 step 10: it raises requiredCaps into the
// ambient set so they survive exec, for the unprivileged path where the
// namespace-root identity has no setuid-root binary backing it. The kernel
// only accepts an ambient raise for caps already in both the permitted and
// inheritable sets, so requiredCaps are added to inheritable first.
func raiseRequiredAmbient() error {
	s := &capability.Set{}
	s.Set(capability.Permitted|capability.Effective|capability.Inheritable|capability.Ambient, requiredCaps...)
	if err := s.ApplyCaps(); err != nil {
		return wrapError(ErrPrivilege, err, "raise required capabilities into inheritable set")
	}
	if err := s.ApplyAmbient(); err != nil {
		return wrapError(ErrPrivilege, err, "raise required capabilities into ambient set")
	}
	return nil
}
