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

package session

import (
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/frostbyte73/core"

	"github.com/screentape/screentape/pkg/logger"
)

const sizeCheckInterval = time.Second

// SizeMonitor polls the output file size while the session is recording.
// It fires onWarning once when the file crosses the warning threshold, and
// onLimit once when it reaches the limit. After onLimit, or once Stop has
// returned, no further checks run.
type SizeMonitor struct {
	filepath string
	maxSize  int64
	warnAt   int64

	clock clock.Clock
	probe func(string) (int64, error)

	onWarning func(size int64)
	onLimit   func(size int64)

	warned   bool
	started  core.Fuse
	quitOnce core.Fuse
	quit     chan struct{}
	done     chan struct{}
}

func NewSizeMonitor(filepath string, maxSize int64, warningPercent float64, onWarning, onLimit func(int64)) *SizeMonitor {
	return &SizeMonitor{
		filepath:  filepath,
		maxSize:   maxSize,
		warnAt:    int64(float64(maxSize) * warningPercent / 100),
		clock:     clock.New(),
		probe:     statSize,
		onWarning: onWarning,
		onLimit:   onLimit,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func statSize(filepath string) (int64, error) {
	stat, err := os.Stat(filepath)
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

func (m *SizeMonitor) Start() {
	m.started.Once(func() {
		go m.monitorFileSize()
	})
}

func (m *SizeMonitor) monitorFileSize() {
	defer close(m.done)

	ticker := m.clock.Ticker(sizeCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.quit:
			return

		case <-ticker.C:
			size, err := m.probe(m.filepath)
			if err != nil {
				// the file may not exist yet, retry next tick
				if !os.IsNotExist(err) {
					logger.Debugw("could not stat output file", "filepath", m.filepath, "error", err)
				}
				continue
			}

			if !m.warned && m.warnAt > 0 && size >= m.warnAt {
				m.warned = true
				m.onWarning(size)
			}
			if size >= m.maxSize {
				m.onLimit(size)
				return
			}
		}
	}
}

// Stop cancels monitoring. It does not return until the monitor has stopped,
// so no check can fire after it.
func (m *SizeMonitor) Stop() {
	if !m.started.IsBroken() {
		return
	}
	m.quitOnce.Once(func() {
		close(m.quit)
	})
	<-m.done
}
