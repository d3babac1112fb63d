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

// Copyright (c) 2013, Suryandaru Triandana <syndtr@gmail.com>
// All rights reserved.
//
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package capability

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const linuxCapVer3 = 0x20080522

type capHeader struct {
	version uint32
	pid     int32
}

type capData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

var (
	lastCapOnce sync.Once
	lastCap     Cap = CapLastCap
)

// kernelLastCap reads /proc/sys/kernel/cap_last_cap once per process, so
// DropBounding walks exactly the capability range this kernel knows about
// rather than whatever this package happens to enumerate.
func kernelLastCap() Cap {
	lastCapOnce.Do(func() {
		f, err := os.Open("/proc/sys/kernel/cap_last_cap")
		if err != nil {
			return
		}
		defer f.Close()

		var buf [16]byte
		n, _ := f.Read(buf[:])
		if v, err := strconv.Atoi(strings.TrimSpace(string(buf[:n]))); err == nil {
			lastCap = Cap(v)
		}
	})
	return lastCap
}

func capget(hdr *capHeader, data *capData) error {
	_, _, errno := syscall.Syscall(unix.SYS_CAPGET, uintptr(unsafe.Pointer(hdr)), uintptr(unsafe.Pointer(data)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func capset(hdr *capHeader, data *capData) error {
	_, _, errno := syscall.Syscall(unix.SYS_CAPSET, uintptr(unsafe.Pointer(hdr)), uintptr(unsafe.Pointer(data)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// Load populates s with the current process's effective, permitted, and
// inheritable sets. Bounding and ambient bits, since the kernel exposes no
// single-call bulk read for them, are tracked purely in-memory by this
// package from the point Load is called onward (mirrors what the caller
// needs: "what have I dropped/raised so far", not "what does the kernel
// think my bounding set is right now").
func Load() (*Set, error) {
	hdr := capHeader{version: linuxCapVer3}
	var data [2]capData

	if err := capget(&hdr, &data[0]); err != nil {
		return nil, fmt.Errorf("capget: %w", err)
	}

	s := &Set{
		effective:   [2]uint32{data[0].effective, data[1].effective},
		permitted:   [2]uint32{data[0].permitted, data[1].permitted},
		inheritable: [2]uint32{data[0].inheritable, data[1].inheritable},
	}

	// Seed the in-memory bounding view as "full" (every bit this process
	// could plausibly hold), so a later DropBounding keeps the whole kernel
	// bounding set unless bits are cleared first. The ambient view starts
	// empty.
	s.bounding = [2]uint32{0xffffffff, 0xffffffff}

	return s, nil
}

// ApplyCaps writes s's effective, permitted, and inheritable sets back to
// the kernel via capset(2).
func (s *Set) ApplyCaps() error {
	hdr := capHeader{version: linuxCapVer3}
	data := [2]capData{
		{effective: s.effective[0], permitted: s.permitted[0], inheritable: s.inheritable[0]},
		{effective: s.effective[1], permitted: s.permitted[1], inheritable: s.inheritable[1]},
	}
	if err := capset(&hdr, &data[0]); err != nil {
		return fmt.Errorf("capset: %w", err)
	}
	return nil
}

// DropBounding removes every capability not present in s's in-memory
// bounding set from the kernel's bounding set, via repeated
// PR_CAPBSET_DROP. It walks 0..kernelLastCap() so it covers capabilities
// added by kernels newer than this package's Cap enumeration.
func (s *Set) DropBounding() error {
	for c := Cap(0); c <= kernelLastCap(); c++ {
		if s.Get(Bounding, c) {
			continue
		}
		if err := unix.Prctl(unix.PR_CAPBSET_DROP, uintptr(c), 0, 0, 0); err != nil {
			if err == unix.EINVAL {
				// Not supported on this kernel; skip rather than fail.
				continue
			}
			return fmt.Errorf("PR_CAPBSET_DROP(%d): %w", c, err)
		}
	}
	return nil
}

// ApplyAmbient raises or lowers each capability in the process's ambient
// set to match s, via PR_CAP_AMBIENT.
func (s *Set) ApplyAmbient() error {
	for c := Cap(0); c <= kernelLastCap(); c++ {
		action := unix.PR_CAP_AMBIENT_LOWER
		if s.Get(Ambient, c) {
			action = unix.PR_CAP_AMBIENT_RAISE
		}
		err := unix.Prctl(unix.PR_CAP_AMBIENT, uintptr(action), uintptr(c), 0, 0)
		if err != nil && err != unix.EINVAL {
			return fmt.Errorf("PR_CAP_AMBIENT(%d): %w", c, err)
		}
	}
	return nil
}

// CurrentEffective reads the capEff field out of /proc/self/status, used by
// the privilege manager's precondition check ("does this process already
// hold capabilities despite not being setuid-root").
func CurrentEffective() (uint64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		if strings.HasPrefix(line, "CapEff:") {
			v := strings.TrimSpace(strings.TrimPrefix(line, "CapEff:"))
			eff, err := strconv.ParseUint(v, 16, 64)
			if err != nil {
				return 0, fmt.Errorf("parse CapEff: %w", err)
			}
			return eff, nil
		}
	}
	return 0, fmt.Errorf("CapEff not found in /proc/self/status")
}
