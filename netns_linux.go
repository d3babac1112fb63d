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

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

// bringUpLoopback configures "lo" with 127.0.0.1/8 and brings the link up,
// so a sandbox with its own network namespace still has a usable loopback.
// It's invoked as address-then-link-up, matching the original netlink
// RTM_NEWADDR-then-RTM_NEWLINK ordering; the original's hand-rolled netlink
// socket asserted byte-for-byte equality between each request and the first
// reply it read back as a (fragile) completion signal. netlink.AddrAdd and
// LinkSetUp perform the equivalent request/ack round trip internally and
// report success/failure as a Go error instead, so that specific assertion
// has no analogue here — see DESIGN.md.
func bringUpLoopback() error {
	logrus.Debugf("bastille: loopback configurer: bringing up lo")

	link, err := netlink.LinkByName("lo")
	if err != nil {
		return wrapError(ErrFilesystem, err, "lookup loopback interface")
	}

	addr, err := netlink.ParseAddr("127.0.0.1/8")
	if err != nil {
		return wrapError(ErrFilesystem, err, "parse loopback address")
	}

	if err := netlink.AddrAdd(link, addr); err != nil && !os.IsExist(err) {
		return wrapError(ErrFilesystem, err, "add loopback address")
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return wrapError(ErrFilesystem, err, "bring up loopback link")
	}

	return nil
}
