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

package media

import (
	"time"

	"github.com/screentape/screentape/pkg/types"
)

type WriterStatus int

const (
	WriterIdle WriterStatus = iota
	WriterWriting
	WriterFinalizing
	WriterCompleted
	WriterFailed
)

func (s WriterStatus) String() string {
	switch s {
	case WriterIdle:
		return "idle"
	case WriterWriting:
		return "writing"
	case WriterFinalizing:
		return "finalizing"
	case WriterCompleted:
		return "completed"
	case WriterFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type TrackSettings struct {
	Codec      types.MimeType
	Width      int32
	Height     int32
	Framerate  int32
	Channels   int32
	SampleRate int32
}

// TrackHandle identifies a track added to a Writer.
type TrackHandle interface {
	Kind() types.SampleKind

	// Ready reports whether the track can accept another sample without
	// queueing. Appending to a track that is not ready is allowed to
	// drop the sample.
	Ready() bool
}

// Writer muxes samples into a container file. Tracks must be added before
// StartWriting, and a session must be opened before the first Append.
// Appending after MarkFinished is undefined.
type Writer interface {
	AddTrack(kind types.SampleKind, settings TrackSettings) (TrackHandle, error)
	StartWriting() error

	// OpenSession establishes the timeline origin. Sample timestamps are
	// interpreted relative to it.
	OpenSession(origin time.Duration)

	// Append writes one sample to the track, returning false if the sample
	// could not be accepted.
	Append(track TrackHandle, sample *Sample) bool

	MarkFinished(track TrackHandle)

	// FinishWriting closes the container and invokes onDone once the file
	// is finalized or has failed.
	FinishWriting(onDone func(error))

	Status() WriterStatus
}
