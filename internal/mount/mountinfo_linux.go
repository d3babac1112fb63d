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

package mount

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// parseMountTable parses a mountinfo file (format documented in
// proc(5)), e.g.:
//
//	36 35 98:0 /mnt1 /mnt2 rw,noatime master:1 - ext3 /dev/root rw,errors=continue
//
// Fields 1-6 are fixed; an arbitrary number of optional fields follow, then
// a "-" separator, then the filesystem type, source, and superblock
// options.
func parseMountTable(path string) ([]*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var infos []*Info

	s := bufio.NewScanner(f)
	for s.Scan() {
		info, err := parseMountInfoLine(s.Text())
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	return infos, nil
}

func parseMountInfoLine(line string) (*Info, error) {
	fields := strings.Fields(line)
	if len(fields) < 10 {
		return nil, fmt.Errorf("malformed mountinfo line: %q", line)
	}

	sepIdx := -1
	for i := 6; i < len(fields); i++ {
		if fields[i] == "-" {
			sepIdx = i
			break
		}
	}
	if sepIdx == -1 || len(fields) < sepIdx+4 {
		return nil, fmt.Errorf("malformed mountinfo line (no separator): %q", line)
	}

	info := &Info{
		Root:       fields[3],
		Mountpoint: fields[4],
		Opts:       fields[5],
		Optional:   strings.Join(fields[6:sepIdx], " "),
		Fstype:     fields[sepIdx+1],
		Source:     fields[sepIdx+2],
		VfsOpts:    fields[sepIdx+3],
	}

	return info, nil
}

// optsToFlags converts the comma-split options recorded in mountinfo (or
// supplied directly by a caller) into their MS_* bit equivalents. Options
// this package doesn't recognize are silently ignored, matching how the
// kernel itself treats unknown filesystem-specific options passed through
// the generic mount(2) flags word.
func optsToFlags(opts []string) uintptr {
	var flags uintptr

	for _, o := range opts {
		switch o {
		case "ro":
			flags |= unix.MS_RDONLY
		case "nosuid":
			flags |= unix.MS_NOSUID
		case "nodev":
			flags |= unix.MS_NODEV
		case "noexec":
			flags |= unix.MS_NOEXEC
		case "noatime":
			flags |= unix.MS_NOATIME
		case "nodiratime":
			flags |= unix.MS_NODIRATIME
		case "relatime":
			flags |= unix.MS_RELATIME
		case "sync":
			flags |= unix.MS_SYNCHRONOUS
		case "dirsync":
			flags |= unix.MS_DIRSYNC
		case "mand":
			flags |= unix.MS_MANDLOCK
		}
	}

	return flags
}
