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
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/screentape/screentape/pkg/info"
	"github.com/screentape/screentape/pkg/types"
)

// SessionMonitor exports per-session capture metrics.
type SessionMonitor struct {
	recordingGauge  prometheus.Gauge
	resultCounter   *prometheus.CounterVec
	durationSeconds prometheus.Histogram

	samplesCounter  *prometheus.CounterVec
	sizeWarningSize prometheus.Gauge

	uploadsCounter      *prometheus.CounterVec
	uploadsResponseTime *prometheus.HistogramVec
	backupCounter       prometheus.Counter
}

func NewSessionMonitor(sessionID string) *SessionMonitor {
	m := &SessionMonitor{}

	constantLabels := prometheus.Labels{"session_id": sessionID}

	m.recordingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "screentape",
		Subsystem:   "session",
		Name:        "recording",
		Help:        "Whether the session is currently recording",
		ConstLabels: constantLabels,
	})

	m.resultCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "screentape",
		Subsystem:   "session",
		Name:        "results",
		Help:        "Session outcomes by terminal status",
		ConstLabels: constantLabels,
	}, []string{"status"})

	m.durationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "screentape",
		Subsystem:   "session",
		Name:        "duration_seconds",
		Help:        "A histogram of recording durations in seconds.",
		Buckets:     []float64{10, 30, 60, 300, 600, 1800, 3600, 7200, 14400},
		ConstLabels: constantLabels,
	})

	m.samplesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "screentape",
		Subsystem:   "session",
		Name:        "samples",
		Help:        "Number of samples routed per track with kind and outcome labels",
		ConstLabels: constantLabels,
	}, []string{"kind", "outcome"}) // outcome: appended, dropped

	m.sizeWarningSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "screentape",
		Subsystem:   "session",
		Name:        "size_warning_bytes",
		Help:        "Output file size when the warning threshold was crossed",
		ConstLabels: constantLabels,
	})

	m.uploadsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "screentape",
		Subsystem:   "session",
		Name:        "uploads",
		Help:        "Number of uploads with type and status labels",
		ConstLabels: constantLabels,
	}, []string{"type", "status"}) // type: file, manifest; status: success, failure

	m.uploadsResponseTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "screentape",
		Subsystem:   "session",
		Name:        "upload_response_time_ms",
		Help:        "A histogram of latencies for upload requests in milliseconds.",
		Buckets:     []float64{10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 15000, 20000, 30000},
		ConstLabels: constantLabels,
	}, []string{"type", "status"})

	m.backupCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "screentape",
		Subsystem:   "session",
		Name:        "backup_storage_writes",
		Help:        "Number of writes to the backup storage location",
		ConstLabels: constantLabels,
	})

	prometheus.MustRegister(
		m.recordingGauge,
		m.resultCounter,
		m.durationSeconds,
		m.samplesCounter,
		m.sizeWarningSize,
		m.uploadsCounter,
		m.uploadsResponseTime,
		m.backupCounter,
	)

	return m
}

func (m *SessionMonitor) SessionStarted() {
	m.recordingGauge.Set(1)
}

func (m *SessionMonitor) SessionEnded(res *info.SessionInfo) {
	m.recordingGauge.Set(0)
	m.resultCounter.With(prometheus.Labels{"status": string(res.Status)}).Add(1)
	if res.StartedAt != 0 && res.EndedAt > res.StartedAt {
		m.durationSeconds.Observe(time.Duration(res.EndedAt - res.StartedAt).Seconds())
	}
}

func (m *SessionMonitor) SampleAppended(kind types.SampleKind) {
	m.samplesCounter.With(prometheus.Labels{"kind": string(kind), "outcome": "appended"}).Add(1)
}

func (m *SessionMonitor) SampleDropped(kind types.SampleKind) {
	m.samplesCounter.With(prometheus.Labels{"kind": string(kind), "outcome": "dropped"}).Add(1)
}

func (m *SessionMonitor) SizeWarning(size int64) {
	m.sizeWarningSize.Set(float64(size))
}

func (m *SessionMonitor) IncUploadCountSuccess(uploadType string, elapsed float64) {
	labels := prometheus.Labels{"type": uploadType, "status": "success"}
	m.uploadsCounter.With(labels).Add(1)
	m.uploadsResponseTime.With(labels).Observe(elapsed)
}

func (m *SessionMonitor) IncUploadCountFailure(uploadType string, elapsed float64) {
	labels := prometheus.Labels{"type": uploadType, "status": "failure"}
	m.uploadsCounter.With(labels).Add(1)
	m.uploadsResponseTime.With(labels).Observe(elapsed)
}

func (m *SessionMonitor) IncBackupStorageWrites() {
	m.backupCounter.Add(1)
}
