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

// Package capability wraps the Linux capability sets (bounding, permitted,
// effective, inheritable, ambient) that the privilege manager raises and
// drops around clone/exec. It only supports the current process (pid 0);
// the teacher's by-pid and by-file variants are trimmed since the sandbox
// driver only ever touches its own capability state.
package capability

// CapType selects one or more of a process's five capability sets.
type CapType uint

const (
	Effective CapType = 1 << iota
	Permitted
	Inheritable
	Bounding
	Ambient
)

// Cap identifies a single POSIX-draft or Linux-extension capability bit, as
// defined in linux/capability.h.
type Cap uint

const (
	CAP_CHOWN              Cap = 0
	CAP_DAC_OVERRIDE        Cap = 1
	CAP_DAC_READ_SEARCH     Cap = 2
	CAP_FOWNER              Cap = 3
	CAP_FSETID              Cap = 4
	CAP_KILL                Cap = 5
	CAP_SETGID              Cap = 6
	CAP_SETUID              Cap = 7
	CAP_SETPCAP             Cap = 8
	CAP_LINUX_IMMUTABLE     Cap = 9
	CAP_NET_BIND_SERVICE    Cap = 10
	CAP_NET_BROADCAST       Cap = 11
	CAP_NET_ADMIN           Cap = 12
	CAP_NET_RAW             Cap = 13
	CAP_IPC_LOCK            Cap = 14
	CAP_IPC_OWNER           Cap = 15
	CAP_SYS_MODULE          Cap = 16
	CAP_SYS_RAWIO           Cap = 17
	CAP_SYS_CHROOT          Cap = 18
	CAP_SYS_PTRACE          Cap = 19
	CAP_SYS_PACCT           Cap = 20
	CAP_SYS_ADMIN           Cap = 21
	CAP_SYS_BOOT            Cap = 22
	CAP_SYS_NICE            Cap = 23
	CAP_SYS_RESOURCE        Cap = 24
	CAP_SYS_TIME            Cap = 25
	CAP_SYS_TTY_CONFIG      Cap = 26
	CAP_MKNOD               Cap = 27
	CAP_LEASE               Cap = 28
	CAP_AUDIT_WRITE         Cap = 29
	CAP_AUDIT_CONTROL       Cap = 30
	CAP_SETFCAP             Cap = 31
	CAP_MAC_OVERRIDE        Cap = 32
	CAP_MAC_ADMIN           Cap = 33
	CAP_SYSLOG              Cap = 34
	CAP_WAKE_ALARM          Cap = 35
	CAP_BLOCK_SUSPEND       Cap = 36
	CAP_AUDIT_READ          Cap = 37
	CAP_PERFMON             Cap = 38
	CAP_BPF                 Cap = 39
	CAP_CHECKPOINT_RESTORE  Cap = 40

	// CapLastCap is the highest capability number in the const block
	// above; DropBounding iterates up to the kernel's own cap_last_cap
	// (read from /proc/sys/kernel/cap_last_cap), not this constant, since
	// a newer kernel may define caps beyond what this package enumerates.
	CapLastCap = CAP_CHECKPOINT_RESTORE
)

// bitIndex splits a Cap into its 32-bit word index (0 or 1) and bit offset
// within that word, matching the kernel's capset/capget ABI for >31.
func bitIndex(c Cap) (word int, bit uint) {
	if c > 31 {
		return 1, uint(c) - 32
	}
	return 0, uint(c)
}

// Set holds a process's capability state across all five sets. The zero
// value is empty; use Load to populate it from the running process.
type Set struct {
	effective, permitted, inheritable [2]uint32
	bounding, ambient                 [2]uint32
}

// Get reports whether c is present in one of the given set (which must be
// exactly one of Effective, Permitted, Inheritable, Bounding, or Ambient).
func (s *Set) Get(which CapType, c Cap) bool {
	word, bit := bitIndex(c)
	mask := uint32(1) << bit

	switch which {
	case Effective:
		return s.effective[word]&mask != 0
	case Permitted:
		return s.permitted[word]&mask != 0
	case Inheritable:
		return s.inheritable[word]&mask != 0
	case Bounding:
		return s.bounding[word]&mask != 0
	case Ambient:
		return s.ambient[word]&mask != 0
	}
	return false
}

// Set raises every cap in caps within every set named in which (which may
// OR together multiple CapType bits).
func (s *Set) Set(which CapType, caps ...Cap) {
	for _, c := range caps {
		word, bit := bitIndex(c)
		mask := uint32(1) << bit

		if which&Effective != 0 {
			s.effective[word] |= mask
		}
		if which&Permitted != 0 {
			s.permitted[word] |= mask
		}
		if which&Inheritable != 0 {
			s.inheritable[word] |= mask
		}
		if which&Bounding != 0 {
			s.bounding[word] |= mask
		}
		if which&Ambient != 0 {
			s.ambient[word] |= mask
		}
	}
}

// Clear drops every bit in every set named in which.
func (s *Set) Clear(which CapType) {
	if which&Effective != 0 {
		s.effective = [2]uint32{}
	}
	if which&Permitted != 0 {
		s.permitted = [2]uint32{}
	}
	if which&Inheritable != 0 {
		s.inheritable = [2]uint32{}
	}
	if which&Bounding != 0 {
		s.bounding = [2]uint32{}
	}
	if which&Ambient != 0 {
		s.ambient = [2]uint32{}
	}
}
