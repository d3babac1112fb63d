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
	"fmt"
	"os"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// idMapLines formats a uid_map/gid_map payload. When blockRootID is true
// and m.ContainerID isn't itself 0, a leading "0 <overflow> 1" line is
// emitted first so namespace-uid 0 is explicitly mapped away from any real
// identity rather than left to fall back on the kernel's overflow default.
func idMapLines(m specs.LinuxIDMapping, overflowID uint32, blockRootID bool) string {
	if blockRootID && m.ContainerID != 0 {
		return fmt.Sprintf("0 %d 1\n%d %d 1\n", overflowID, m.ContainerID, m.HostID)
	}
	return fmt.Sprintf("%d %d 1\n", m.ContainerID, m.HostID)
}

// writeSetgroupsDeny writes "deny" to /proc/<pid>/setgroups, which must
// happen before the gid_map write on kernels that support it. A missing
// file (pre-3.19 kernels lack setgroups restriction) is not an error.
func writeSetgroupsDeny(pid int) error {
	path := fmt.Sprintf("/proc/%d/setgroups", pid)
	if err := os.WriteFile(path, []byte("deny\n"), 0644); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return wrapError(ErrCredential, err, "write %s", path)
	}
	return nil
}

func writeIDMapFile(pid int, name, contents string) error {
	path := fmt.Sprintf("/proc/%d/%s", pid, name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		return wrapError(ErrCredential, err, "write %s", path)
	}
	return nil
}

// writeCredentials writes setgroups, gid_map, and uid_map for pid, in that
// order. When escalateFsuid is true (the privileged parent writing on behalf
// of its child) it briefly escalates its own fsuid/fsgid to 0 first, since only a
// process with CAP_SETUID/CAP_SETGID in the target's owning user namespace
// may author these files for another process.
func writeCredentials(pid int, sandboxUID, sandboxGID, realUID, realGID, overflowUID, overflowGID uint32, escalateFsuid, blockRootID bool) error {
	if escalateFsuid {
		prevUID := unix.Setfsuid(0)
		prevGID := unix.Setfsgid(0)
		defer func() {
			unix.Setfsuid(prevUID)
			unix.Setfsgid(prevGID)
		}()
	}

	if err := writeSetgroupsDeny(pid); err != nil {
		return err
	}

	gidMap := specs.LinuxIDMapping{ContainerID: sandboxGID, HostID: realGID, Size: 1}
	if err := writeIDMapFile(pid, "gid_map", idMapLines(gidMap, overflowGID, blockRootID)); err != nil {
		return err
	}

	uidMap := specs.LinuxIDMapping{ContainerID: sandboxUID, HostID: realUID, Size: 1}
	if err := writeIDMapFile(pid, "uid_map", idMapLines(uidMap, overflowUID, blockRootID)); err != nil {
		return err
	}

	return nil
}
