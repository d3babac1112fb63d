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
	"bufio"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
)

// overlayMapOp and overlayUnmapOp are the two message shapes the sandboxfs
// control protocol accepts, one entry per mapping in a single batch.
type overlayMapOp struct {
	Map struct {
		Mapping  string `json:"Mapping"`
		Target   string `json:"Target"`
		Writable bool   `json:"Writable"`
	} `json:"Map"`
}

type overlayUnmapOp struct {
	Unmap string `json:"Unmap"`
}

// overlayController owns the sandboxfs process driving the FUSE overlay:
// its stdin/stdout for the JSON control protocol, and the mount point it
// was told to serve. It is modeled as an external collaborator (spec.md's
// "overlay as an external process" design note) rather than an embedded
// FUSE binding, reached purely through the documented protocol.
type overlayController struct {
	cmd        *exec.Cmd
	in         io.WriteCloser
	out        *bufio.Reader
	mountPoint string
}

// startOverlay launches sandboxfs against a fresh "mnt" subdirectory of
// root, bound to gid via the worker's own credentials so the mounted view
// preserves group ownership, then performs the initial (empty) mount
// handshake the original implementation always does at startup.
func startOverlay(root string, gid uint32) (*overlayController, error) {
	mountPoint := filepath.Join(root, "mnt")
	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return nil, wrapError(ErrOverlay, err, "create overlay mount point")
	}

	cmd := exec.Command("sandboxfs", "-o", "fsname=sandboxfs", "-o", "allow_other", mountPoint)
	cmd.SysProcAttr = &syscall.SysProcAttr{Credential: &syscall.Credential{Gid: gid}}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, wrapError(ErrOverlay, err, "open overlay stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, wrapError(ErrOverlay, err, "open overlay stdout")
	}

	if err := cmd.Start(); err != nil {
		return nil, wrapError(ErrOverlay, err, "start overlay process")
	}

	oc := &overlayController{cmd: cmd, in: stdin, out: bufio.NewReader(stdout), mountPoint: mountPoint}

	if err := oc.send([]interface{}{}); err != nil {
		oc.close()
		return nil, err
	}

	return oc, nil
}

// mount instructs the overlay to serve every mapping in the set.
func (oc *overlayController) mount(mappings *MappingSet) error {
	ops := make([]interface{}, 0, len(mappings.Slice()))
	for _, m := range mappings.Slice() {
		op := overlayMapOp{}
		op.Map.Mapping = m.SandboxPath
		op.Map.Target = m.HostPath
		op.Map.Writable = m.Writable
		ops = append(ops, op)
	}
	return oc.send(ops)
}

// unmount tells the overlay to stop serving every mapping in the set.
func (oc *overlayController) unmount(mappings *MappingSet) error {
	ops := make([]interface{}, 0, len(mappings.Slice()))
	for _, m := range mappings.Slice() {
		ops = append(ops, overlayUnmapOp{Unmap: m.SandboxPath})
	}
	return oc.send(ops)
}

// send writes a single newline-delimited JSON message and requires a
// "Done\n" reply line, per the control protocol.
func (oc *overlayController) send(ops []interface{}) error {
	data, err := json.Marshal(ops)
	if err != nil {
		return wrapError(ErrOverlay, err, "encode overlay control message")
	}
	data = append(data, '\n')

	if _, err := oc.in.Write(data); err != nil {
		return wrapError(ErrOverlay, err, "write overlay control message")
	}

	line, err := oc.out.ReadString('\n')
	if err != nil {
		return wrapError(ErrOverlay, err, "read overlay control reply")
	}
	if line != "Done\n" {
		return newError(ErrOverlay, "overlay rejected control message: %s", line)
	}
	return nil
}

// close sends SIGHUP to the overlay process and waits for it to exit,
// mirroring the original's worker-thread teardown (pthread_kill + join).
// Any shutdown error is logged here; callers do not act on the returned
// error, since the FS process itself is about to exit regardless.
func (oc *overlayController) close() error {
	oc.in.Close()
	if oc.cmd.Process != nil {
		oc.cmd.Process.Signal(syscall.SIGHUP)
	}
	err := oc.cmd.Wait()
	if err != nil {
		logrus.Warnf("bastille: overlay controller: shutdown: %v", err)
	}
	return err
}

// unmountFilesystem unmounts the overlay's mount point directly (no
// unmount flags), used by the FS process once it detects its sandbox
// sibling has exited.
func unmountFilesystem(mountPoint string) error {
	if err := syscall.Unmount(mountPoint, 0); err != nil {
		return wrapError(ErrOverlay, err, "unmount %s", mountPoint)
	}
	return nil
}
