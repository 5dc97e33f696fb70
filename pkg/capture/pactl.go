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
	"bytes"
	"encoding/json"
	"os/exec"

	"github.com/screentape/screentape/pkg/config"
	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/logger"
)

type PulseInfo struct {
	Sinks   []PulseDevice `json:"sinks"`
	Sources []PulseDevice `json:"sources"`
}

type PulseDevice struct {
	Index               int     `json:"index"`
	State               string  `json:"state"`
	Name                string  `json:"name"`
	Description         string  `json:"description"`
	Driver              string  `json:"driver"`
	SampleSpecification string  `json:"sample_specification"`
	ChannelMap          string  `json:"channel_map"`
	Mute                bool    `json:"mute"`
	MonitorSource       string  `json:"monitor_source"`
	MonitorOfSink       string  `json:"monitor_of_sink"`
}

// ListPulseDevices shells out to pactl for the current sink and source
// inventory.
func ListPulseDevices() (*PulseInfo, error) {
	cmd := exec.Command("pactl", "--format", "json", "list")
	var b, e bytes.Buffer
	cmd.Stdout = &b
	cmd.Stderr = &e
	if cmd.Run() != nil {
		return nil, errors.New(e.String())
	}
	return parsePulseList(b.Bytes())
}

func parsePulseList(data []byte) (*PulseInfo, error) {
	info := &PulseInfo{}
	return info, json.Unmarshal(data, info)
}

// SourceNames returns the names of all capture sources, monitors included.
func (info *PulseInfo) SourceNames() []string {
	names := make([]string, 0, len(info.Sources))
	for _, src := range info.Sources {
		names = append(names, src.Name)
	}
	return names
}

func (info *PulseInfo) HasSource(name string) bool {
	for _, src := range info.Sources {
		if src.Name == name {
			return true
		}
	}
	return false
}

// logPulseStatus warns about configured devices pactl cannot see. The
// devices may still appear before the pipeline starts, so this does not
// fail the session.
func logPulseStatus(conf *config.Config) {
	if conf.SystemDevice == "" && conf.MicDevice == "" {
		return
	}

	info, err := ListPulseDevices()
	if err != nil {
		logger.Warnw("failed to list pulse devices", err)
		return
	}

	logger.Debugw("pulse status", "sinks", len(info.Sinks), "sources", len(info.Sources))
	for _, device := range []string{conf.SystemDevice, conf.MicDevice} {
		if device != "" && !info.HasSource(device) {
			logger.Warnw("pulse source not found", nil, "device", device, "available", info.SourceNames())
		}
	}
}
