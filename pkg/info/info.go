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

package info

import (
	"time"

	"github.com/screentape/screentape/pkg/types"
)

type SessionStatus string

const (
	StatusStarting     SessionStatus = "starting"
	StatusActive       SessionStatus = "active"
	StatusEnding       SessionStatus = "ending"
	StatusLimitReached SessionStatus = "limit_reached"
	StatusComplete     SessionStatus = "complete"
	StatusAborted      SessionStatus = "aborted"
	StatusFailed       SessionStatus = "failed"
)

const (
	MsgSizeLimitReached     = "Size limit reached"
	MsgDurationLimitReached = "Duration limit reached"
	MsgStoppedBeforeStarted = "Stop called before recording could start"
)

type SessionInfo struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Details   string        `json:"details,omitempty"`
	Error     string        `json:"error,omitempty"`

	StartedAt int64 `json:"started_at,omitempty"`
	EndedAt   int64 `json:"ended_at,omitempty"`
	UpdatedAt int64 `json:"updated_at,omitempty"`

	StopReason  types.StopReason `json:"stop_reason,omitempty"`
	SizeWarning bool             `json:"size_warning,omitempty"`
	BackupUsed  bool             `json:"backup_used,omitempty"`

	Tracks              []*TrackStats `json:"tracks,omitempty"`
	AudioSamples        uint64        `json:"audio_samples,omitempty"`
	DroppedBeforeOrigin uint64        `json:"dropped_before_origin,omitempty"`

	File *FileInfo `json:"file,omitempty"`
}

type TrackStats struct {
	Kind     types.SampleKind `json:"kind"`
	Appended uint64           `json:"appended"`
	Dropped  uint64           `json:"dropped"`
}

type FileInfo struct {
	Filename string `json:"filename,omitempty"`
	Location string `json:"location,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

func (s *SessionInfo) UpdateStatus(status SessionStatus) {
	s.Status = status
	s.UpdatedAt = time.Now().UnixNano()
}

func (s *SessionInfo) SetLimitReached(msg string) {
	now := time.Now().UnixNano()
	s.Status = StatusLimitReached
	s.Details = msg
	s.UpdatedAt = now
	s.EndedAt = now
}

func (s *SessionInfo) SetAborted(msg string) {
	now := time.Now().UnixNano()
	s.Status = StatusAborted
	if s.Details == "" {
		s.Details = msg
	} else {
		s.Details = s.Details + "; " + msg
	}
	s.UpdatedAt = now
	s.EndedAt = now
}

func (s *SessionInfo) SetFailed(err error) {
	now := time.Now().UnixNano()
	s.Status = StatusFailed
	s.UpdatedAt = now
	s.EndedAt = now
	s.Error = err.Error()
}

func (s *SessionInfo) SetBackupUsed() {
	s.BackupUsed = true
	s.UpdatedAt = time.Now().UnixNano()
}

func (s *SessionInfo) SetComplete() {
	now := time.Now().UnixNano()
	s.Status = StatusComplete
	s.UpdatedAt = now
	s.EndedAt = now
}
