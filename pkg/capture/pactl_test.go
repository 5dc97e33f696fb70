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

package capture

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const pactlListOutput = `{
  "modules": [
    {"name": "module-null-sink", "argument": "sink_name=virtual", "usage_counter": "n/a", "properties": {}}
  ],
  "sinks": [
    {
      "index": 0,
      "state": "RUNNING",
      "name": "virtual",
      "description": "Null Output",
      "driver": "PipeWire",
      "sample_specification": "s16le 2ch 48000Hz",
      "channel_map": "front-left,front-right",
      "mute": false,
      "monitor_source": "virtual.monitor"
    }
  ],
  "sources": [
    {
      "index": 1,
      "state": "RUNNING",
      "name": "virtual.monitor",
      "description": "Monitor of Null Output",
      "driver": "PipeWire",
      "sample_specification": "s16le 2ch 48000Hz",
      "channel_map": "front-left,front-right",
      "mute": false,
      "monitor_of_sink": "virtual"
    },
    {
      "index": 2,
      "state": "SUSPENDED",
      "name": "alsa_input.usb-mic",
      "description": "USB Microphone",
      "driver": "PipeWire",
      "sample_specification": "s16le 1ch 44100Hz",
      "channel_map": "mono",
      "mute": false
    }
  ],
  "sink_inputs": [],
  "source_outputs": [],
  "clients": []
}`

func TestParsePulseList(t *testing.T) {
	info, err := parsePulseList([]byte(pactlListOutput))
	require.NoError(t, err)

	require.Len(t, info.Sinks, 1)
	require.Equal(t, "virtual", info.Sinks[0].Name)
	require.Equal(t, "virtual.monitor", info.Sinks[0].MonitorSource)

	require.Len(t, info.Sources, 2)
	require.True(t, info.HasSource("virtual.monitor"))
	require.True(t, info.HasSource("alsa_input.usb-mic"))
	require.False(t, info.HasSource("missing"))

	require.Equal(t, []string{"virtual.monitor", "alsa_input.usb-mic"}, info.SourceNames())
}
