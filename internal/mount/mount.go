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

// Package mount parses /proc/<pid>/mountinfo and converts mount option
// strings to their corresponding MS_* flag bits, for use by the root
// constructor when it remounts each submount under a populated mapping.
package mount

import (
	"fmt"
	"strings"
)

// Info describes a single entry of /proc/<pid>/mountinfo.
type Info struct {
	// Mountpoint is the path at which this filesystem is mounted.
	Mountpoint string
	// Root is the pathname of the directory in the filesystem that forms
	// the root of this mount.
	Root string
	// Fstype is the filesystem type, e.g. "ext4", "tmpfs", "proc".
	Fstype string
	// Source is the mount source, as shown after the "-" separator.
	Source string
	// Opts is the mount's own (per-mountpoint) option string, e.g.
	// "rw,nosuid,nodev".
	Opts string
	// VfsOpts is the superblock (filesystem-wide) option string.
	VfsOpts string
	// Optional carries the optional fields (e.g. "master:1", "shared:2")
	// preceding the "-" separator, used to detect mount propagation type.
	Optional string
}

// GetMounts returns the mount table for the calling process.
func GetMounts() ([]*Info, error) {
	return parseMountTable("/proc/self/mountinfo")
}

// MountedWithFs reports whether mountpoint is mounted with the given
// filesystem type, according to mounts. Used by the root constructor to
// refuse bind-mounting procfs into a sysctl-restricted sandbox.
func MountedWithFs(mountpoint, fs string, mounts []*Info) bool {
	for _, m := range mounts {
		if m.Mountpoint == mountpoint && m.Fstype == fs {
			return true
		}
	}
	return false
}

// UnderPath returns every entry of mounts whose Mountpoint is dest itself or
// a descendant of it, ordered root-first (dest, then its submounts in the
// order mountinfo listed them).
func UnderPath(dest string, mounts []*Info) []*Info {
	var under []*Info
	prefix := strings.TrimSuffix(dest, "/") + "/"

	for _, m := range mounts {
		if m.Mountpoint == dest || strings.HasPrefix(m.Mountpoint, prefix) {
			under = append(under, m)
		}
	}
	return under
}

// OptionsToFlags converts a mount option string list (e.g. "rw", "nodev",
// as found in Info.Opts) to its corresponding MS_* flags bitmask.
func OptionsToFlags(opts []string) uintptr {
	return optsToFlags(opts)
}
