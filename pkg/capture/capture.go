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

// Package capture produces encoded media samples, either by recording an
// X display and pulse audio devices or by receiving pre-encoded streams
// over rtp.
package capture

import (
	"github.com/screentape/screentape/pkg/config"
	"github.com/screentape/screentape/pkg/media"
	"github.com/screentape/screentape/pkg/types"
)

// New builds the source described by the config for the requested kinds.
func New(conf *config.Config, callbacks *media.Callbacks, kinds []types.SampleKind) (media.Source, error) {
	if conf.RTPIngest != nil {
		return newRTPSource(conf, callbacks, kinds)
	}
	return newDisplaySource(conf, callbacks, kinds)
}
