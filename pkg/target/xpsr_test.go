// Copyright 2025 Tom Barlow
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

package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXPSRInITBlock(t *testing.T) {
	// plain thumb state, no IT bits
	assert.False(t, XPSRInITBlock(0x01000000))
	// IT[1:0] set
	assert.True(t, XPSRInITBlock(1<<25))
	// IT[7:2] set
	assert.True(t, XPSRInITBlock(1<<10))
	assert.True(t, XPSRInITBlock(0x01000000|0b11<<25))
}

func TestXPSRString(t *testing.T) {
	s := XPSRString(0x81000000)
	assert.Contains(t, s, "negative (N): ...... 1")
	assert.Contains(t, s, "thumb state (T): ... 1")
	assert.Contains(t, s, "0x81000000")
}
