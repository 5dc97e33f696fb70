// Copyright 2025 Screentape, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestMemoryReaderV2(t *testing.T) {
	fsys := fstest.MapFS{
		"proc/self/cgroup": &fstest.MapFile{
			Data: []byte("0::/user.slice/user-1000.slice/session-1.scope\n"),
		},
		"sys/fs/cgroup/user.slice/user-1000.slice/session-1.scope/memory.current": &fstest.MapFile{
			Data: []byte("1073741824\n"),
		},
		"sys/fs/cgroup/user.slice/user-1000.slice/session-1.scope/memory.stat": &fstest.MapFile{
			Data: []byte("anon 536870912\nfile 268435456\ninactive_file 134217728\nactive_file 134217728\n"),
		},
	}

	stats, err := NewMemoryReaderWithFS(fsys).Read()
	require.NoError(t, err)
	require.Equal(t, uint64(1073741824), stats.TotalBytes)
	require.Equal(t, uint64(134217728), stats.InactiveFileBytes)
	require.Equal(t, uint64(939524096), stats.WorkingSetBytes)
}

func TestMemoryReaderV2RootFallback(t *testing.T) {
	// no usable cgroup entry, root files still present
	fsys := fstest.MapFS{
		"proc/self/cgroup": &fstest.MapFile{Data: []byte("")},
		"sys/fs/cgroup/memory.current": &fstest.MapFile{
			Data: []byte("2147483648\n"),
		},
		"sys/fs/cgroup/memory.stat": &fstest.MapFile{
			Data: []byte("inactive_file 268435456\n"),
		},
	}

	stats, err := NewMemoryReaderWithFS(fsys).Read()
	require.NoError(t, err)
	require.Equal(t, uint64(2147483648), stats.TotalBytes)
	require.Equal(t, uint64(1879048192), stats.WorkingSetBytes)
}

func TestMemoryReaderV1(t *testing.T) {
	fsys := fstest.MapFS{
		"proc/self/cgroup": &fstest.MapFile{
			Data: []byte("12:pids:/docker/abc123\n11:memory:/docker/abc123\n10:cpu,cpuacct:/docker/abc123\n"),
		},
		"sys/fs/cgroup/memory/docker/abc123/memory.usage_in_bytes": &fstest.MapFile{
			Data: []byte("3221225472\n"),
		},
		"sys/fs/cgroup/memory/docker/abc123/memory.stat": &fstest.MapFile{
			Data: []byte("cache 1073741824\nrss 2147483648\ntotal_inactive_file 536870912\ntotal_active_file 536870912\n"),
		},
	}

	stats, err := NewMemoryReaderWithFS(fsys).Read()
	require.NoError(t, err)
	require.Equal(t, uint64(3221225472), stats.TotalBytes)
	require.Equal(t, uint64(536870912), stats.InactiveFileBytes)
	require.Equal(t, uint64(2684354560), stats.WorkingSetBytes)
}

func TestMemoryReaderV1InactiveFileKey(t *testing.T) {
	fsys := fstest.MapFS{
		"proc/self/cgroup": &fstest.MapFile{
			Data: []byte("11:memory:/docker/abc123\n"),
		},
		"sys/fs/cgroup/memory/docker/abc123/memory.usage_in_bytes": &fstest.MapFile{
			Data: []byte("1000000\n"),
		},
		"sys/fs/cgroup/memory/docker/abc123/memory.stat": &fstest.MapFile{
			Data: []byte("inactive_file 400000\n"),
		},
	}

	stats, err := NewMemoryReaderWithFS(fsys).Read()
	require.NoError(t, err)
	require.Equal(t, uint64(600000), stats.WorkingSetBytes)
}

func TestMemoryReaderUnavailable(t *testing.T) {
	r := NewMemoryReaderWithFS(fstest.MapFS{})

	_, err := r.Read()
	require.ErrorIs(t, err, ErrCgroupNotAvailable)

	// detection is cached, repeated reads fail the same way
	_, err = r.Read()
	require.ErrorIs(t, err, ErrCgroupNotAvailable)
}

func TestMemoryReaderMissingStatKey(t *testing.T) {
	// inactive_file missing entirely, working set equals total
	fsys := fstest.MapFS{
		"proc/self/cgroup": &fstest.MapFile{Data: []byte("0::/\n")},
		"sys/fs/cgroup/memory.current": &fstest.MapFile{
			Data: []byte("500000\n"),
		},
		"sys/fs/cgroup/memory.stat": &fstest.MapFile{
			Data: []byte("anon 500000\n"),
		},
	}

	stats, err := NewMemoryReaderWithFS(fsys).Read()
	require.NoError(t, err)
	require.Equal(t, uint64(500000), stats.TotalBytes)
	require.Zero(t, stats.InactiveFileBytes)
	require.Equal(t, uint64(500000), stats.WorkingSetBytes)
}
