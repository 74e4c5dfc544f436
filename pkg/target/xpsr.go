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
	"fmt"
	"strings"
)

// XPSRInITBlock reports whether the given Cortex-M xPSR value has any IT
// bits set, i.e. the core is inside an if/then block. Halting there breaks
// subsequent expression evaluation involving function calls, so Halt single
// steps out of the block by default.
func XPSRInITBlock(xpsr uint32) bool {
	return (xpsr>>25)&0b11 != 0 || (xpsr>>10)&0b111111 != 0
}

// XPSRString renders a Cortex-M xPSR value as a multi-line human-readable
// description for diagnostics.
func XPSRString(xpsr uint32) string {
	var b strings.Builder
	fmt.Fprintf(&b, "xPSR: 0b%032b (0x%08x)\n", xpsr, xpsr)
	fmt.Fprintf(&b, "negative (N): ...... %d\n", (xpsr>>31)&1)
	fmt.Fprintf(&b, "zero (Z): .......... %d\n", (xpsr>>30)&1)
	fmt.Fprintf(&b, "carry (C): ......... %d\n", (xpsr>>29)&1)
	fmt.Fprintf(&b, "overflow (V): ...... %d\n", (xpsr>>28)&1)
	fmt.Fprintf(&b, "cumulative sat. (Q): %d\n", (xpsr>>27)&1)
	fmt.Fprintf(&b, "if/then/else (IT): . %02b     (IT[1:0])\n", (xpsr>>25)&0b11)
	fmt.Fprintf(&b, "thumb state (T): ... %d\n", (xpsr>>24)&1)
	fmt.Fprintf(&b, "gt or equal (GE): .. %d\n", (xpsr>>16)&0b1111)
	fmt.Fprintf(&b, "if/then/else (IT): . %06b (IT[7:2])\n", (xpsr>>10)&0b111111)
	return b.String()
}
