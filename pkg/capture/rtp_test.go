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
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRTPTimestamper(t *testing.T) {
	m := rtpTimestamper{clockRate: h264ClockRate}

	// first packet anchors at arrival time
	pts := m.pts(1000000, time.Second)
	require.Equal(t, time.Second, pts)

	// one frame at 30fps is 3000 ticks at 90kHz
	pts = m.pts(1003000, time.Second+50*time.Millisecond)
	require.Equal(t, time.Second+time.Second/30, pts)

	pts = m.pts(1006000, time.Second+80*time.Millisecond)
	require.Equal(t, time.Second+2*time.Second/30, pts)
}

func TestRTPTimestamperRollover(t *testing.T) {
	m := rtpTimestamper{clockRate: opusClockRate}

	start := uint32(math.MaxUint32 - 480)
	pts := m.pts(start, 0)
	require.Equal(t, time.Duration(0), pts)

	// 960 ticks is 20ms at 48kHz, crossing the 32 bit boundary
	pts = m.pts(start+960, 25*time.Millisecond)
	require.Equal(t, 20*time.Millisecond, pts)

	pts = m.pts(start+1920, 45*time.Millisecond)
	require.Equal(t, 40*time.Millisecond, pts)
}

func TestRTPTimestamperReordered(t *testing.T) {
	m := rtpTimestamper{clockRate: h264ClockRate}

	m.pts(9000, time.Second)
	pts := m.pts(12000, time.Second+time.Millisecond*40)
	require.Equal(t, time.Second+time.Second/30, pts)

	// a sample arriving late maps before the previous one
	pts = m.pts(10500, time.Second+time.Millisecond*50)
	require.Equal(t, time.Second+time.Second/60, pts)
}
