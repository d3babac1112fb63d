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
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

const sampleMountinfo = `22 28 0:21 / /sys rw,nosuid,nodev,noexec,relatime shared:7 - sysfs sysfs rw
28 1 8:1 / / rw,relatime shared:1 - ext4 /dev/sda1 rw,errors=remount-ro
36 28 0:31 / /mnt/new_root rw,nosuid,relatime shared:18 - tmpfs tmpfs rw
37 36 8:1 /usr /mnt/new_root/usr ro,nosuid,nodev,relatime shared:1 - ext4 /dev/sda1 ro,errors=remount-ro
38 37 0:32 / /mnt/new_root/usr/lib64 rw,relatime shared:19 - tmpfs tmpfs rw
`

func writeSampleMountinfo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mountinfo")
	if err := os.WriteFile(path, []byte(sampleMountinfo), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseMountTable(t *testing.T) {
	path := writeSampleMountinfo(t)

	infos, err := parseMountTable(path)
	if err != nil {
		t.Fatalf("parseMountTable: %v", err)
	}
	if len(infos) != 5 {
		t.Fatalf("want 5 entries, got %d", len(infos))
	}

	usr := infos[3]
	if usr.Mountpoint != "/mnt/new_root/usr" {
		t.Errorf("mountpoint: want /mnt/new_root/usr, got %s", usr.Mountpoint)
	}
	if usr.Fstype != "ext4" {
		t.Errorf("fstype: want ext4, got %s", usr.Fstype)
	}
	if usr.Opts != "ro,nosuid,nodev,relatime" {
		t.Errorf("opts: want ro,nosuid,nodev,relatime, got %s", usr.Opts)
	}
}

func TestParseMountTableRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mountinfo")
	if err := os.WriteFile(path, []byte("not enough fields\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := parseMountTable(path); err == nil {
		t.Fatal("expected an error for a malformed mountinfo line")
	}
}

func TestUnderPathReturnsRootFirstThenSubmounts(t *testing.T) {
	path := writeSampleMountinfo(t)
	infos, err := parseMountTable(path)
	if err != nil {
		t.Fatal(err)
	}

	under := UnderPath("/mnt/new_root/usr", infos)
	if len(under) != 2 {
		t.Fatalf("want 2 entries under /mnt/new_root/usr, got %d", len(under))
	}
	if under[0].Mountpoint != "/mnt/new_root/usr" {
		t.Errorf("expected subtree root first, got %s", under[0].Mountpoint)
	}
	if under[1].Mountpoint != "/mnt/new_root/usr/lib64" {
		t.Errorf("expected submount second, got %s", under[1].Mountpoint)
	}
}

func TestUnderPathDoesNotMatchUnrelatedSiblingPrefix(t *testing.T) {
	infos := []*Info{
		{Mountpoint: "/mnt/new_root/usr"},
		{Mountpoint: "/mnt/new_root/usr-backup"},
	}

	under := UnderPath("/mnt/new_root/usr", infos)
	if len(under) != 1 {
		t.Fatalf("want 1 entry, got %d", len(under))
	}
}

func TestOptionsToFlags(t *testing.T) {
	flags := OptionsToFlags([]string{"ro", "nosuid", "nodev"})
	want := uintptr(unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV)
	if flags != want {
		t.Errorf("OptionsToFlags: want %#x, got %#x", want, flags)
	}
}

func TestOptionsToFlagsIgnoresUnknownOptions(t *testing.T) {
	flags := OptionsToFlags([]string{"rw", "whatever-unknown-option"})
	if flags != 0 {
		t.Errorf("OptionsToFlags: want 0, got %#x", flags)
	}
}

func TestMountedWithFs(t *testing.T) {
	path := writeSampleMountinfo(t)
	infos, err := parseMountTable(path)
	if err != nil {
		t.Fatal(err)
	}

	if !MountedWithFs("/sys", "sysfs", infos) {
		t.Error("MountedWithFs(/sys, sysfs): want true")
	}
	if MountedWithFs("/sys", "proc", infos) {
		t.Error("MountedWithFs(/sys, proc): want false, wrong fstype")
	}
	if MountedWithFs("/nonexistent", "sysfs", infos) {
		t.Error("MountedWithFs(/nonexistent, sysfs): want false")
	}
}
