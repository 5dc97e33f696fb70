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

package config

import (
	"github.com/screentape/screentape/pkg/types"
)

func (c *Config) applyPreset(preset types.Preset) {
	switch preset {
	case types.Preset720P30:
		c.Width = 1280
		c.Height = 720
		c.VideoBitrate = 3000

	case types.Preset1080P30:
		// default

	case types.Preset1080P60:
		c.Framerate = 60
		c.VideoBitrate = 6000

	case types.Preset1440P30:
		c.Width = 2560
		c.Height = 1440
		c.VideoBitrate = 9000
	}
}
