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

// Package capture provides a bounded in-memory ring buffer for recent
// protocol trace lines. It keeps recording cheap so it can stay enabled
// during timing-sensitive low-level analysis; entries are only formatted
// and written out when Dump is called after a failure.
package capture

import (
	"fmt"
	"log/slog"
	"sync"
)

// DefaultSize is the number of records kept when no size is given.
const DefaultSize = 60

// Ring is a bounded circular buffer of protocol trace lines. It is safe for
// concurrent use. A disabled Ring discards records without locking overhead
// beyond the enabled check.
type Ring struct {
	mu      sync.Mutex
	enabled bool
	records []string
	next    int
	wrapped bool
}

// NewRing creates a ring buffer holding up to size records. A size of zero
// or less falls back to DefaultSize.
func NewRing(enabled bool, size int) *Ring {
	if size <= 0 {
		size = DefaultSize
	}
	return &Ring{
		enabled: enabled,
		records: make([]string, size),
	}
}

// Enabled reports whether recording is active.
func (r *Ring) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// SetEnabled enables or disables recording.
func (r *Ring) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// Record appends a formatted trace line, overwriting the oldest entry once
// the buffer is full.
func (r *Ring) Record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}

	r.records[r.next] = fmt.Sprintf(format, args...)
	r.next++
	if r.next == len(r.records) {
		r.next = 0
		r.wrapped = true
	}
}

// Snapshot returns the recorded lines in arrival order.
func (r *Ring) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	if r.wrapped {
		out = append(out, r.records[r.next:]...)
	}
	out = append(out, r.records[:r.next]...)
	return out
}

// Dump writes the recorded lines to the logger at warn level. It is a no-op
// when recording is disabled or nothing has been recorded.
func (r *Ring) Dump(logger *slog.Logger) {
	lines := r.Snapshot()
	if len(lines) == 0 {
		return
	}

	logger.Warn("protocol capture dump", slog.Int("records", len(lines)))
	for i, line := range lines {
		logger.Warn(fmt.Sprintf("  [%02d] %s", i, line))
	}
}
