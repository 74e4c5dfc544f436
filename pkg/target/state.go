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
	"sync"
	"time"

	oterrors "github.com/probelab/ontarget/pkg/errors"
)

// stateTracker holds the run/halt state of the device. Transitions come
// only from debugger notifications. Waiters block on a broadcast channel
// that is closed and renewed on every transition.
type stateTracker struct {
	mu      sync.Mutex
	running bool
	reason  string
	stops   uint64 // count of transitions into the halted state
	changed chan struct{}
}

func newStateTracker() *stateTracker {
	// until the first notification arrives the device is assumed running
	return &stateTracker{
		running: true,
		changed: make(chan struct{}),
	}
}

func (s *stateTracker) markStopped(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.reason = reason
	s.stops++
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *stateTracker) markRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.reason = ""
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *stateTracker) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// lastReason returns the reason of the most recent stop transition.
func (s *stateTracker) lastReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// wait blocks until the run state equals running or the timeout elapses.
// On success it returns the stop reason current at that moment.
func (s *stateTracker) wait(running bool, op string, timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		if s.running == running {
			reason := s.reason
			s.mu.Unlock()
			return reason, nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-deadline.C:
			return "", &oterrors.TimeoutError{Op: op, Timeout: timeout}
		}
	}
}

// haltSeq returns the current stop-transition count, for use with
// waitHaltSince.
func (s *stateTracker) haltSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// waitHaltSince blocks until a stop transition later than seq has occurred,
// even when the matching running phase was too short to observe. Used by
// stepping commands, where the run and stop notifications can both arrive
// before the waiter is in place.
func (s *stateTracker) waitHaltSince(seq uint64, op string, timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		if s.stops > seq {
			reason := s.reason
			s.mu.Unlock()
			return reason, nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-deadline.C:
			return "", &oterrors.TimeoutError{Op: op, Timeout: timeout}
		}
	}
}
