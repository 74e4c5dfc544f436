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

import (
	"sync"

	oterrors "github.com/probelab/ontarget/pkg/errors"
)

// ContextMode marks which logical actor may currently issue commands on the
// MI channel.
type ContextMode int

const (
	// ContextNormal is the default: the regular test flow owns the channel.
	ContextNormal ContextMode = iota + 1

	// ContextIntercept means a live-intercept breakpoint hit is being
	// serviced; only that breakpoint's dedicated exec/eval path may talk
	// to the debugger.
	ContextIntercept
)

// String returns the mode name.
func (m ContextMode) String() string {
	switch m {
	case ContextNormal:
		return "normal"
	case ContextIntercept:
		return "intercept"
	default:
		return "unknown"
	}
}

// Guard is the single-owner mutual exclusion for the MI channel. Acquire
// never blocks; contention is pushed back to the caller as an error.
type Guard struct {
	mu     sync.Mutex
	mode   ContextMode
	holder any
}

// NewGuard creates a guard in Normal mode.
func NewGuard() *Guard {
	return &Guard{mode: ContextNormal}
}

// Acquire switches the guard to mode with holder as owner. It fails with a
// *ContextViolationError if the guard is not currently in Normal mode.
func (g *Guard) Acquire(holder any, mode ContextMode) error {
	if mode == ContextNormal {
		return &oterrors.ContextViolationError{Message: "cannot acquire the normal context; use Release"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.mode != ContextNormal {
		return &oterrors.ContextViolationError{
			Message: "cannot switch context while not in normal context; the current holder has to release first",
		}
	}
	g.mode = mode
	g.holder = holder
	return nil
}

// Release resets the guard to Normal mode. Only the holder that acquired
// the context may release it.
func (g *Guard) Release(holder any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if holder != g.holder {
		return &oterrors.ContextViolationError{
			Message: "context can only be released by the entity that acquired it",
		}
	}
	g.mode = ContextNormal
	g.holder = nil
	return nil
}

// Mode returns the current context mode.
func (g *Guard) Mode() ContextMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}
