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

package bastille

// DirectoryDecl is a set of absolute paths to be created empty inside the
// sandbox, once the new root is populated.
type DirectoryDecl struct {
	paths []string
}

// Configuration is a fluent accumulator of sandbox settings. It is mutated
// only through its builder methods; once passed to Spawn it is treated as
// read-only.
type Configuration struct {
	mappings    MappingSet
	softLinks   []SoftLink
	directories DirectoryDecl

	uid *uint32
	gid *uint32

	allowDevices      bool
	allowLocalSockets bool
	allowNetwork      bool
	allowSysctl       bool
}

// NewConfiguration returns a Configuration with no mappings, links, or
// directories, no uid/gid override, and all four policy bits false (fully
// restricted).
func NewConfiguration() *Configuration {
	return &Configuration{}
}

// AddMapping appends a single path mapping.
func (c *Configuration) AddMapping(m Mapping) *Configuration {
	c.mappings.Append(m)
	return c
}

// AddMappings appends every mapping in ms, in order.
func (c *Configuration) AddMappings(ms []Mapping) *Configuration {
	c.mappings.Extend(ms)
	return c
}

// ClearMappings empties the mapping set.
func (c *Configuration) ClearMappings() *Configuration {
	c.mappings.Clear()
	return c
}

// AddSoftLink declares a symlink to create inside the sandbox.
func (c *Configuration) AddSoftLink(link SoftLink) *Configuration {
	c.softLinks = append(c.softLinks, link)
	return c
}

// AddSoftLinks declares every symlink in links, in order.
func (c *Configuration) AddSoftLinks(links []SoftLink) *Configuration {
	c.softLinks = append(c.softLinks, links...)
	return c
}

// AddDirectory declares an absolute path to create empty inside the sandbox.
func (c *Configuration) AddDirectory(path string) *Configuration {
	c.directories.paths = append(c.directories.paths, path)
	return c
}

// AddDirectories declares every path in paths, in order.
func (c *Configuration) AddDirectories(paths []string) *Configuration {
	c.directories.paths = append(c.directories.paths, paths...)
	return c
}

// SetUID overrides the sandbox's effective UID; unset, it defaults to the
// caller's real UID at spawn time.
func (c *Configuration) SetUID(uid uint32) *Configuration {
	c.uid = &uid
	return c
}

// SetGID overrides the sandbox's effective GID; unset, it defaults to the
// caller's real GID at spawn time.
func (c *Configuration) SetGID(gid uint32) *Configuration {
	c.gid = &gid
	return c
}

// AllowDevices permits /dev-style device nodes: it suppresses MS_NODEV on
// Linux and allows file-ioctl in the macOS sandbox profile.
func (c *Configuration) AllowDevices(allow bool) *Configuration {
	c.allowDevices = allow
	return c
}

// AllowLocalSockets permits local/UNIX-domain sockets. Reserved on both
// platforms: neither the Linux driver nor the macOS profile composer
// consults it yet.
func (c *Configuration) AllowLocalSockets(allow bool) *Configuration {
	c.allowLocalSockets = allow
	return c
}

// AllowNetwork controls whether the sandbox gets a full network stack.
// When false on Linux, the child joins a new network namespace with only
// loopback brought up; when false on macOS, network allow-rules are
// omitted from the profile.
func (c *Configuration) AllowNetwork(allow bool) *Configuration {
	c.allowNetwork = allow
	return c
}

// AllowSysctl controls process-table and sysctl visibility. When false on
// Linux, the child joins a new PID namespace; it also gates sysctl-write on
// macOS and rejects procfs bind-mounts on Linux.
func (c *Configuration) AllowSysctl(allow bool) *Configuration {
	c.allowSysctl = allow
	return c
}
