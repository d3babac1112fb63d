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
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ebkalderon/bastille/internal/mount"
)

// buildRoot runs inside the child's mount namespace (Phase P4 step 7). It
// constructs a tmpfs root, populates it from mappings, pivots into it
// twice (releasing the original root), then attempts to restore a sensible
// working directory. It returns the directory PWD should be set to.
func buildRoot(cfg *Configuration, mappings *MappingSet) (string, error) {
	origCwd, _ := os.Getwd()

	if err := unix.Mount("", "/", "", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		return "", wrapError(ErrFilesystem, err, "remount / as MS_SLAVE|MS_REC")
	}

	if err := unix.Mount("tmpfs", "/tmp", "tmpfs", unix.MS_NODEV|unix.MS_NOSUID, ""); err != nil {
		return "", wrapError(ErrFilesystem, err, "mount tmpfs at /tmp")
	}
	if err := os.Chdir("/tmp"); err != nil {
		return "", wrapError(ErrFilesystem, err, "chdir /tmp")
	}

	if err := os.Mkdir("new_root", 0755); err != nil {
		return "", wrapError(ErrFilesystem, err, "mkdir new_root")
	}
	if err := os.Mkdir("old_root", 0755); err != nil {
		return "", wrapError(ErrFilesystem, err, "mkdir old_root")
	}

	// Bind-mount new_root onto itself so it becomes a mount point, which
	// pivot_root requires of both its arguments.
	if err := unix.Mount("new_root", "new_root", "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return "", wrapError(ErrFilesystem, err, "self bind-mount new_root")
	}

	logrus.Debugf("bastille: root constructor: first pivot_root(/tmp, /tmp/old_root)")
	if err := unix.PivotRoot("/tmp", "/tmp/old_root"); err != nil {
		return "", wrapError(ErrFilesystem, err, "pivot_root(/tmp, /tmp/old_root)")
	}
	if err := os.Chdir("/"); err != nil {
		return "", wrapError(ErrFilesystem, err, "chdir /")
	}

	logrus.Debugf("bastille: root constructor: populating new_root from %d mapping(s)", len(mappings.Slice()))
	if err := populateNewRoot(cfg, mappings); err != nil {
		return "", err
	}

	if err := unix.Mount("", "/old_root", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return "", wrapError(ErrFilesystem, err, "remount /old_root MS_REC|MS_PRIVATE")
	}
	if err := unix.Unmount("/old_root", unix.MNT_DETACH); err != nil {
		return "", wrapError(ErrFilesystem, err, "lazy-unmount /old_root")
	}

	oldRootFd, err := unix.Open("/", unix.O_DIRECTORY, 0)
	if err != nil {
		return "", wrapError(ErrFilesystem, err, "open / for fchdir handle")
	}
	defer unix.Close(oldRootFd)

	if err := os.Chdir("/new_root"); err != nil {
		return "", wrapError(ErrFilesystem, err, "chdir /new_root")
	}
	logrus.Debugf("bastille: root constructor: second pivot_root(., .)")
	if err := unix.PivotRoot(".", "."); err != nil {
		return "", wrapError(ErrFilesystem, err, "second pivot_root(., .)")
	}
	if err := unix.Fchdir(oldRootFd); err != nil {
		return "", wrapError(ErrFilesystem, err, "fchdir back to saved root")
	}
	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return "", wrapError(ErrFilesystem, err, "lazy-unmount old root remnant")
	}
	if err := os.Chdir("/"); err != nil {
		return "", wrapError(ErrFilesystem, err, "chdir /")
	}

	return restoreWorkingDir(origCwd)
}

// restoreWorkingDir attempts to return to the caller's pre-sandbox cwd if
// it still resolves inside the new view, falling back to $HOME, then "/".
func restoreWorkingDir(origCwd string) (string, error) {
	if origCwd != "" {
		if err := os.Chdir(origCwd); err == nil {
			return origCwd, nil
		}
	}

	if home := os.Getenv("HOME"); home != "" {
		if err := os.Chdir(home); err == nil {
			return home, nil
		}
	}

	if err := os.Chdir("/"); err != nil {
		return "", wrapError(ErrFilesystem, err, "chdir /")
	}
	return "/", nil
}

// populateNewRoot implements the "Populating new_root" procedure: for each
// resolved mapping, bind-mount the host source onto the sandbox
// destination, then remount every submount under it with the composed
// flags.
func populateNewRoot(cfg *Configuration, mappings *MappingSet) error {
	for _, m := range mappings.Slice() {
		src := filepath.Join("/old_root", m.HostPath)
		dst := filepath.Join("/new_root", m.SandboxPath)

		fi, err := os.Stat(src)
		if err != nil {
			return wrapError(ErrFilesystem, err, "stat mapping source %s", src)
		}

		if fi.IsDir() {
			if err := os.MkdirAll(dst, 0755); err != nil {
				return wrapError(ErrFilesystem, err, "mkdir destination %s", dst)
			}
		} else {
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return wrapError(ErrFilesystem, err, "mkdir destination parent %s", dst)
			}
			f, err := os.OpenFile(dst, os.O_CREATE, 0666)
			if err != nil {
				return wrapError(ErrFilesystem, err, "create destination file %s", dst)
			}
			f.Close()
		}

		if err := unix.Mount(src, dst, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return wrapError(ErrFilesystem, err, "bind-mount %s onto %s", src, dst)
		}

		if err := remountSubtree(cfg, m, dst); err != nil {
			return err
		}
	}

	for _, dir := range cfg.directories.paths {
		if err := os.MkdirAll(filepath.Join("/new_root", dir), 0755); err != nil {
			return wrapError(ErrFilesystem, err, "mkdir declared directory %s", dir)
		}
	}

	for _, link := range cfg.softLinks {
		path := filepath.Join("/new_root", link.LinkPath)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return wrapError(ErrFilesystem, err, "mkdir soft-link parent %s", path)
		}
		if err := os.Symlink(link.Target, path); err != nil {
			return wrapError(ErrFilesystem, err, "create soft-link %s -> %s", path, link.Target)
		}
	}

	return nil
}

// remountSubtree reads /proc/self/mountinfo and remounts dst and every
// submount beneath it with the flags the policy requires. It preserves a
// known-suspect behavior of the original implementation: the option set it
// composes is derived from the subtree root's own options on every loop
// iteration, not from each submount's own options. See DESIGN.md.
func remountSubtree(cfg *Configuration, m Mapping, dst string) error {
	mounts, err := mount.GetMounts()
	if err != nil {
		return wrapError(ErrFilesystem, err, "read /proc/self/mountinfo")
	}

	under := mount.UnderPath(dst, mounts)
	if len(under) == 0 {
		return nil
	}

	root := under[0]

	if mount.MountedWithFs(root.Mountpoint, "proc", mounts) && !cfg.allowSysctl {
		return newError(ErrFilesystem, "refusing to mount procfs at %s with sysctl disallowed", dst)
	}

	targetOpts := mapset.NewSet()
	for _, o := range strings.Split(root.Opts, ",") {
		targetOpts.Add(o)
	}
	targetOpts.Add("nosuid")
	if !cfg.allowDevices {
		targetOpts.Add("nodev")
	}
	if !m.Writable {
		targetOpts.Add("ro")
	}

	flags := mount.OptionsToFlags(toStringSlice(targetOpts))

	for _, sub := range under {
		subOpts := mapset.NewSet()
		for _, o := range strings.Split(sub.Opts, ",") {
			subOpts.Add(o)
		}
		if targetOpts.Equal(subOpts) {
			continue
		}
		if err := unix.Mount("", sub.Mountpoint, "", unix.MS_REMOUNT|unix.MS_BIND|flags, ""); err != nil {
			return wrapError(ErrFilesystem, err, "remount %s with updated flags", sub.Mountpoint)
		}
	}

	return nil
}

func toStringSlice(s mapset.Set) []string {
	out := make([]string, 0, s.Cardinality())
	for _, v := range s.ToSlice() {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
