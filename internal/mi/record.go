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

package mi

// Kind identifies the type of an MI output record.
type Kind string

const (
	// KindResult is a command result record ("^").
	KindResult Kind = "result"

	// KindNotify is an unsolicited async record ("*" exec-async or "="
	// notify-async). Both carry target and debugger state changes.
	KindNotify Kind = "notify"

	// KindConsole is a console stream record ("~").
	KindConsole Kind = "console"

	// KindLog is a debugger log stream record ("&").
	KindLog Kind = "log"

	// KindTarget is a target output stream record ("@").
	KindTarget Kind = "target"

	// KindOutput is anything the grammar does not cover, including the
	// "(gdb)" prompt line.
	KindOutput Kind = "output"
)

// Result classes reported by the debugger. In async mode "running" and
// "stopped" results are completion statuses equivalent to "done"; run-state
// truth comes only from notify records.
const (
	ClassDone    = "done"
	ClassRunning = "running"
	ClassStopped = "stopped"
	ClassError   = "error"
)

// Payload is the nested key/value data carried by result and notify
// records. Values are string, Payload or []any.
type Payload map[string]any

// String returns the string value for key, or "" when absent or not a
// string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Sub returns the nested payload for key, or nil.
func (p Payload) Sub(key string) Payload {
	sub, _ := p[key].(Payload)
	return sub
}

// Record is one parsed MI output line.
type Record struct {
	// Kind is the record type.
	Kind Kind

	// Token is the originating command token for result records, or -1.
	Token int

	// Class is the result class ("done", "error", ...) for results and
	// the event name ("stopped", "running", ...) for notify records.
	Class string

	// Payload carries the record's structured data, if any.
	Payload Payload

	// Text is the decoded stream text for console/log/target records and
	// the raw line for output records.
	Text string
}

// Reason returns the notify reason string, normalizing the probe-adapter
// quirk where the reason arrives as a list containing "breakpoint-hit".
// The normalized scalar is written back into the payload so every
// downstream consumer sees the same form.
func (r *Record) Reason() string {
	if r.Payload == nil {
		return ""
	}
	switch v := r.Payload["reason"].(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "breakpoint-hit" {
				r.Payload["reason"] = s
				return s
			}
		}
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
