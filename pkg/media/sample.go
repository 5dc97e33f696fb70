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

// Sample is one encoded unit of media. Samples are immutable once created
// and are consumed by at most one track.
type Sample struct {
	Kind     types.SampleKind
	Data     []byte
	PTS      time.Duration // capture clock timestamp
	Duration time.Duration
	Keyframe bool
}
