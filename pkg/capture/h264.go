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

const (
	naluTypeNonIDR = 1
	naluTypeIDR    = 5
)

// isH264Keyframe scans an annex-b access unit for an IDR slice. Scanning
// stops at the first slice NALU, parameter sets and SEI before it are
// skipped.
func isH264Keyframe(au []byte) bool {
	i := 0
	for i+3 < len(au) {
		if au[i] != 0 || au[i+1] != 0 {
			i++
			continue
		}

		var nalStart int
		switch {
		case au[i+2] == 1:
			nalStart = i + 3
		case au[i+2] == 0 && i+4 < len(au) && au[i+3] == 1:
			nalStart = i + 4
		default:
			i++
			continue
		}
		if nalStart >= len(au) {
			return false
		}

		switch au[nalStart] & 0x1f {
		case naluTypeIDR:
			return true
		case naluTypeNonIDR:
			return false
		}
		i = nalStart
	}
	return false
}
