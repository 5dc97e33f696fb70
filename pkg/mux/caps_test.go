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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/screentape/screentape/pkg/media"
	"github.com/screentape/screentape/pkg/types"
)

func TestCapsString(t *testing.T) {
	caps, err := capsString(media.TrackSettings{
		Codec:     types.MimeTypeH264,
		Width:     1920,
		Height:    1080,
		Framerate: 30,
	})
	require.NoError(t, err)
	require.Equal(t, "video/x-h264,stream-format=byte-stream,alignment=au,width=1920,height=1080,framerate=30/1", caps)

	// unknown dimensions are left out
	caps, err = capsString(media.TrackSettings{Codec: types.MimeTypeH264})
	require.NoError(t, err)
	require.Equal(t, "video/x-h264,stream-format=byte-stream,alignment=au", caps)

	caps, err = capsString(media.TrackSettings{
		Codec:      types.MimeTypeAAC,
		Channels:   2,
		SampleRate: 44100,
	})
	require.NoError(t, err)
	require.Equal(t, "audio/mpeg,mpegversion=4,stream-format=adts,rate=44100,channels=2", caps)

	caps, err = capsString(media.TrackSettings{Codec: types.MimeTypeOpus})
	require.NoError(t, err)
	require.Equal(t, "audio/x-opus,channel-mapping-family=0,rate=48000,channels=2", caps)

	_, err = capsString(media.TrackSettings{Codec: "video/vp8"})
	require.Error(t, err)
}

func TestParserName(t *testing.T) {
	for codec, expected := range map[types.MimeType]string{
		types.MimeTypeH264: "h264parse",
		types.MimeTypeAAC:  "aacparse",
		types.MimeTypeOpus: "opusparse",
	} {
		parser, err := parserName(codec)
		require.NoError(t, err)
		require.Equal(t, expected, parser)
	}
}

func TestMuxerName(t *testing.T) {
	name, err := muxerName(types.ContainerMP4)
	require.NoError(t, err)
	require.Equal(t, "mp4mux", name)

	name, err = muxerName(types.ContainerMOV)
	require.NoError(t, err)
	require.Equal(t, "qtmux", name)

	_, err = muxerName("mkv")
	require.Error(t, err)
}

func TestMuxPadTemplate(t *testing.T) {
	require.Equal(t, "video_%u", muxPadTemplate(types.KindVideo))
	require.Equal(t, "audio_%u", muxPadTemplate(types.KindSystemAudio))
	require.Equal(t, "audio_%u", muxPadTemplate(types.KindMicrophone))
}
