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
	"strconv"
	"strings"
)

// Cast converts a value string as printed by the debugger into the closest
// Go type: int64, float64, bool, or the unchanged string when nothing else
// fits. It understands the debugger's composite renderings:
//
//	"2 '\\002'"          char literals
//	"0x0304 <func_name>" function pointers
//	"0x65 \"e\""         character pointers
//	"@0xaabbccdd"        C++ references
func Cast(s string) any {
	// char literals carry the numeric value before the quoted rune
	if i := strings.Index(s, " '"); i >= 0 {
		s = s[:i]
	}

	lower := strings.ToLower(s)
	if strings.Contains(lower, "false") {
		return false
	}
	if strings.Contains(lower, "true") {
		return true
	}

	hex := strings.TrimPrefix(s, "@")
	if strings.HasPrefix(hex, "0x") {
		if i := strings.Index(hex, " <"); i >= 0 {
			hex = hex[:i]
		} else if i := strings.Index(hex, ` "`); i >= 0 {
			hex = hex[:i]
		}
		if n, err := strconv.ParseInt(hex[2:], 16, 64); err == nil {
			return n
		}
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// CastInt casts s and reports the result as int64. ok is false when the
// value is not numeric.
func CastInt(s string) (int64, bool) {
	switch v := Cast(s).(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
