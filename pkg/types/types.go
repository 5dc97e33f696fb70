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

package types

type SampleKind string
type ContainerKind string
type MimeType string
type Profile string
type Preset string
type FileExtension string
type StopReason string

const (
	// sample kinds
	KindVideo       SampleKind = "video"
	KindSystemAudio SampleKind = "system_audio"
	KindMicrophone  SampleKind = "microphone"

	// codecs carried into the container
	MimeTypeAAC  MimeType = "audio/aac"
	MimeTypeOpus MimeType = "audio/opus"
	MimeTypeH264 MimeType = "video/h264"

	// video encoder profiles
	ProfileBaseline Profile = "baseline"
	ProfileMain     Profile = "main"
	ProfileHigh     Profile = "high"

	// capture presets
	PresetNone    Preset = ""
	Preset720P30  Preset = "720p30"
	Preset1080P30 Preset = "1080p30"
	Preset1080P60 Preset = "1080p60"
	Preset1440P30 Preset = "1440p30"

	// container kinds
	ContainerMP4 ContainerKind = "mp4"
	ContainerMOV ContainerKind = "mov"

	// file extensions
	FileExtensionMP4 FileExtension = ".mp4"
	FileExtensionMOV FileExtension = ".mov"

	// stop reasons
	StopRequested     StopReason = "requested"
	StopSignal        StopReason = "signal"
	StopSizeLimit     StopReason = "size_limit"
	StopDurationLimit StopReason = "duration_limit"
	StopSourceError   StopReason = "source_error"
)

var (
	ContainerExtensions = map[ContainerKind]FileExtension{
		ContainerMP4: FileExtensionMP4,
		ContainerMOV: FileExtensionMOV,
	}

	ContainerContentTypes = map[ContainerKind]string{
		ContainerMP4: "video/mp4",
		ContainerMOV: "video/quicktime",
	}

	CodecCompatibility = map[ContainerKind]map[MimeType]bool{
		ContainerMP4: {
			MimeTypeAAC:  true,
			MimeTypeH264: true,
		},
		ContainerMOV: {
			MimeTypeAAC:  true,
			MimeTypeOpus: true,
			MimeTypeH264: true,
		},
	}

	AudioKinds = []SampleKind{KindSystemAudio, KindMicrophone}
)

func (k SampleKind) IsAudio() bool {
	switch k {
	case KindSystemAudio, KindMicrophone:
		return true
	default:
		return false
	}
}

func (k SampleKind) Valid() bool {
	switch k {
	case KindVideo, KindSystemAudio, KindMicrophone:
		return true
	default:
		return false
	}
}

func (c ContainerKind) Extension() FileExtension {
	return ContainerExtensions[c]
}

func (c ContainerKind) ContentType() string {
	return ContainerContentTypes[c]
}

func (c ContainerKind) Compatible(codec MimeType) bool {
	return CodecCompatibility[c][codec]
}
