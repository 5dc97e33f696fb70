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
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/screentape/screentape/pkg/errors"
)

var ErrCgroupNotAvailable = errors.New("cgroup memory not available")

// MemoryStats holds one reading of the session's cgroup memory usage.
// WorkingSetBytes excludes the page cache the kernel can reclaim, which is
// the number that matters when the encoder starts to balloon.
type MemoryStats struct {
	TotalBytes        uint64
	InactiveFileBytes uint64
	WorkingSetBytes   uint64
}

// MemoryReader reads cgroup memory usage for the current process, detecting
// v2 or v1 on first use. Safe for concurrent use.
type MemoryReader struct {
	fsys fs.FS

	once      sync.Once
	usagePath string
	statPath  string
	statKey   string
}

func NewMemoryReader() *MemoryReader {
	return &MemoryReader{fsys: os.DirFS("/")}
}

// NewMemoryReaderWithFS is used by tests to substitute the filesystem.
func NewMemoryReaderWithFS(fsys fs.FS) *MemoryReader {
	return &MemoryReader{fsys: fsys}
}

func (r *MemoryReader) Read() (MemoryStats, error) {
	r.once.Do(r.detect)

	if r.usagePath == "" {
		return MemoryStats{}, ErrCgroupNotAvailable
	}

	total, err := readUint64File(r.fsys, r.usagePath)
	if err != nil {
		return MemoryStats{}, err
	}
	inactive, _ := readStatValue(r.fsys, r.statPath, r.statKey)

	workingSet := total
	if inactive < total {
		workingSet = total - inactive
	}
	return MemoryStats{
		TotalBytes:        total,
		InactiveFileBytes: inactive,
		WorkingSetBytes:   workingSet,
	}, nil
}

// detect probes cgroup v2 then v1 and caches whichever responds.
func (r *MemoryReader) detect() {
	v2Dir := "/sys/fs/cgroup"
	if p, err := cgroupPath(r.fsys, "0"); err == nil {
		v2Dir = path.Join(v2Dir, p)
	}
	if usage := path.Join(v2Dir, "memory.current"); fileReadable(r.fsys, usage) {
		r.usagePath = usage
		r.statPath = path.Join(v2Dir, "memory.stat")
		r.statKey = "inactive_file"
		return
	}

	v1Dir := "/sys/fs/cgroup/memory"
	if p, err := cgroupPath(r.fsys, "memory"); err == nil {
		v1Dir = path.Join(v1Dir, p)
	}
	if usage := path.Join(v1Dir, "memory.usage_in_bytes"); fileReadable(r.fsys, usage) {
		r.usagePath = usage
		r.statPath = path.Join(v1Dir, "memory.stat")
		r.statKey = "total_inactive_file"
		if _, err := readStatValue(r.fsys, r.statPath, r.statKey); err != nil {
			r.statKey = "inactive_file"
		}
	}
}

// cgroupPath finds this process's cgroup for the controller in
// /proc/self/cgroup. The v2 entry uses the pseudo-controller "0" with an
// empty controller list.
func cgroupPath(fsys fs.FS, controller string) (string, error) {
	data, err := fs.ReadFile(fsys, fsPath("/proc/self/cgroup"))
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		if controller == "0" {
			if parts[0] == "0" && parts[1] == "" {
				return strings.TrimSpace(parts[2]), nil
			}
			continue
		}
		for _, c := range strings.Split(parts[1], ",") {
			if c == controller {
				return strings.TrimSpace(parts[2]), nil
			}
		}
	}
	return "", fmt.Errorf("no %s cgroup entry", controller)
}

func fileReadable(fsys fs.FS, p string) bool {
	f, err := fsys.Open(fsPath(p))
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

func readUint64File(fsys fs.FS, p string) (uint64, error) {
	data, err := fs.ReadFile(fsys, fsPath(p))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", p, err)
	}
	val, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", p, err)
	}
	return val, nil
}

func readStatValue(fsys fs.FS, p, key string) (uint64, error) {
	f, err := fsys.Open(fsPath(p))
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == key {
			return strconv.ParseUint(fields[1], 10, 64)
		}
	}
	return 0, fmt.Errorf("%s not found in %s", key, p)
}

// fsPath converts an absolute path to one usable with an fs.FS rooted at /.
func fsPath(p string) string {
	return strings.TrimPrefix(p, "/")
}
