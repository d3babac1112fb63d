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

import "strings"

// buildSandboxProfile composes the Apple sandbox (Seatbelt) Scheme-syntax
// profile for cfg. The base clauses are always present; everything after
// them is gated by the configuration's policy bits.
func buildSandboxProfile(cfg *Configuration) string {
	var b strings.Builder

	b.WriteString("(version 1)\n")
	b.WriteString("(deny default)\n")
	b.WriteString("(allow process*)\n")

	b.WriteString("(allow file-read* (subpath \"/\"))\n")
	b.WriteString("(allow file-write* (subpath \"/\"))\n")

	if cfg.allowDevices {
		b.WriteString("(allow file-ioctl (subpath \"/\"))\n")
	}

	b.WriteString("(allow network-bind (local ip \"localhost:*\"))\n")
	b.WriteString("(allow network-inbound (local ip \"localhost:*\"))\n")
	b.WriteString("(allow sysctl-read)\n")

	if cfg.allowNetwork {
		b.WriteString("(allow network-outbound (remote ip \"*:*\"))\n")
		b.WriteString("(allow network-outbound (remote unix-socket))\n")
		b.WriteString("(allow network-bind (local ip \"*:*\"))\n")
		b.WriteString("(allow network-inbound (local ip \"*:*\"))\n")
		b.WriteString("(allow system-socket)\n")
	}

	if cfg.allowSysctl {
		b.WriteString("(allow sysctl-write)\n")
	}

	return b.String()
}
