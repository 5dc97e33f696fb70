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

package mux

import (
	"fmt"

	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/media"
	"github.com/screentape/screentape/pkg/types"
)

// capsString describes the samples pushed into a track's appsrc. Video
// arrives as byte-stream access units, AAC as ADTS frames, and opus as
// raw opus frames.
func capsString(settings media.TrackSettings) (string, error) {
	switch settings.Codec {
	case types.MimeTypeH264:
		caps := "video/x-h264,stream-format=byte-stream,alignment=au"
		if settings.Width > 0 && settings.Height > 0 {
			caps = fmt.Sprintf("%s,width=%d,height=%d", caps, settings.Width, settings.Height)
		}
		if settings.Framerate > 0 {
			caps = fmt.Sprintf("%s,framerate=%d/1", caps, settings.Framerate)
		}
		return caps, nil

	case types.MimeTypeAAC:
		rate := settings.SampleRate
		if rate == 0 {
			rate = 44100
		}
		channels := settings.Channels
		if channels == 0 {
			channels = 2
		}
		return fmt.Sprintf("audio/mpeg,mpegversion=4,stream-format=adts,rate=%d,channels=%d", rate, channels), nil

	case types.MimeTypeOpus:
		channels := settings.Channels
		if channels == 0 {
			channels = 2
		}
		// opus is always clocked at 48kHz
		return fmt.Sprintf("audio/x-opus,channel-mapping-family=0,rate=48000,channels=%d", channels), nil

	default:
		return "", errors.ErrNotSupported(string(settings.Codec))
	}
}

// parserName returns the parse element placed between the appsrc and the
// muxer. The parser converts byte-stream and adts input to the packaged
// forms the muxer expects.
func parserName(codec types.MimeType) (string, error) {
	switch codec {
	case types.MimeTypeH264:
		return "h264parse", nil
	case types.MimeTypeAAC:
		return "aacparse", nil
	case types.MimeTypeOpus:
		return "opusparse", nil
	default:
		return "", errors.ErrNotSupported(string(codec))
	}
}

func muxerName(container types.ContainerKind) (string, error) {
	switch container {
	case types.ContainerMP4:
		return "mp4mux", nil
	case types.ContainerMOV:
		return "qtmux", nil
	default:
		return "", errors.ErrNotSupported(string(container))
	}
}

// muxPadTemplate returns the request pad template on the muxer for a track.
func muxPadTemplate(kind types.SampleKind) string {
	if kind.IsAudio() {
		return "audio_%u"
	}
	return "video_%u"
}
