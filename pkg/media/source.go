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
	"sync"
)

// Source produces samples after Start and stops producing once the Stop
// completion has fired.
type Source interface {
	Start() error

	// Stop halts production. onDone fires after the last sample has been
	// delivered.
	Stop(onDone func())
}

// Callbacks connects a Source to its consumer.
type Callbacks struct {
	mu sync.RWMutex

	onSample     func(*Sample)
	onFatalError func(error)
}

func (c *Callbacks) SetOnSample(f func(*Sample)) {
	c.mu.Lock()
	c.onSample = f
	c.mu.Unlock()
}

func (c *Callbacks) OnSample(s *Sample) {
	c.mu.RLock()
	onSample := c.onSample
	c.mu.RUnlock()
	if onSample != nil {
		onSample(s)
	}
}

func (c *Callbacks) SetOnFatalError(f func(error)) {
	c.mu.Lock()
	c.onFatalError = f
	c.mu.Unlock()
}

func (c *Callbacks) OnFatalError(err error) {
	c.mu.RLock()
	onFatalError := c.onFatalError
	c.mu.RUnlock()
	if onFatalError != nil {
		onFatalError(err)
	}
}
