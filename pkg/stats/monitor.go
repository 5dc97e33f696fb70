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
	"runtime"
	"time"

	"github.com/frostbyte73/core"
	"github.com/mackerelio/go-osstat/cpu"
	"github.com/pbnjay/memory"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/logger"
)

const (
	loadInterval = time.Second

	// encoding 1080p in real time needs breathing room
	minFreeMemory = uint64(512 << 20)
	minCPUs       = 2
)

// Monitor watches host cpu and memory while a session records. Sustained
// load is the usual cause of dropped samples, so it is surfaced early.
type Monitor struct {
	sessionID string

	numCPUs  float64
	idleCPUs atomic.Float64
	cgroup   *MemoryReader

	promCPULoad prometheus.Gauge
	promMemory  prometheus.Gauge

	warningThrottle core.Throttle
	started         core.Fuse
}

func NewMonitor(sessionID string) *Monitor {
	return &Monitor{
		sessionID:       sessionID,
		numCPUs:         float64(runtime.NumCPU()),
		cgroup:          NewMemoryReader(),
		warningThrottle: core.NewThrottle(time.Minute),
	}
}

// Preflight checks host capacity before a session starts.
func (m *Monitor) Preflight() error {
	if free := memory.FreeMemory(); free > 0 && free < minFreeMemory {
		logger.Errorw("not enough free memory", nil, "free", free, "required", minFreeMemory)
		return errors.ErrResourceExhausted("memory")
	}
	if m.numCPUs < minCPUs {
		logger.Warnw("low cpu count, encoding may fall behind", nil, "numCPUs", m.numCPUs)
	}
	return nil
}

// Start registers the host gauges and begins sampling until close is closed.
func (m *Monitor) Start(close chan struct{}) {
	m.started.Once(func() {
		m.promCPULoad = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "screentape",
			Subsystem:   "node",
			Name:        "cpu_load",
			ConstLabels: prometheus.Labels{"session_id": m.sessionID},
		})
		m.promMemory = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "screentape",
			Subsystem:   "node",
			Name:        "memory_working_set_bytes",
			ConstLabels: prometheus.Labels{"session_id": m.sessionID},
		})
		prometheus.MustRegister(m.promCPULoad, m.promMemory)

		go m.monitorLoad(close)
	})
}

func (m *Monitor) monitorLoad(close chan struct{}) {
	prev, _ := cpu.Get()

	ticker := time.NewTicker(loadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-close:
			return

		case <-ticker.C:
			next, err := cpu.Get()
			if err == nil && prev != nil && next.Total > prev.Total {
				idlePercent := float64(next.Idle-prev.Idle) / float64(next.Total-prev.Total)
				m.idleCPUs.Store(m.numCPUs * idlePercent)
				m.promCPULoad.Set(1 - idlePercent)

				if idlePercent < 0.1 {
					m.warningThrottle(func() {
						logger.Warnw("high cpu load, samples may be dropped", nil,
							"load", (1-idlePercent)*100,
						)
					})
				}
				prev = next
			}

			if stats, err := m.cgroup.Read(); err == nil {
				m.promMemory.Set(float64(stats.WorkingSetBytes))
			}
		}
	}
}

// GetCPULoad returns the most recent load sample as a percentage.
func (m *Monitor) GetCPULoad() float64 {
	return (m.numCPUs - m.idleCPUs.Load()) / m.numCPUs * 100
}
