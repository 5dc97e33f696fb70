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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSampleKinds(t *testing.T) {
	require.True(t, KindSystemAudio.IsAudio())
	require.True(t, KindMicrophone.IsAudio())
	require.False(t, KindVideo.IsAudio())

	require.True(t, KindVideo.Valid())
	require.False(t, SampleKind("screenshot").Valid())
	require.False(t, SampleKind("").Valid())
}

func TestContainerCompatibility(t *testing.T) {
	require.Equal(t, FileExtensionMP4, ContainerMP4.Extension())
	require.Equal(t, FileExtensionMOV, ContainerMOV.Extension())

	require.True(t, ContainerMP4.Compatible(MimeTypeH264))
	require.True(t, ContainerMP4.Compatible(MimeTypeAAC))
	require.False(t, ContainerMP4.Compatible(MimeTypeOpus))
	require.True(t, ContainerMOV.Compatible(MimeTypeOpus))
}
