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
	"time"

	oterrors "github.com/probelab/ontarget/pkg/errors"
)

// Correlator matches asynchronous result records to the command token that
// produced them. Deliveries that arrive before anyone waits are parked so
// the reader never blocks; waiters block until their token's record arrives
// or a timeout elapses.
type Correlator struct {
	mu      sync.Mutex
	waiters map[int]chan Record
	parked  map[int]Record
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{
		waiters: make(map[int]chan Record),
		parked:  make(map[int]Record),
	}
}

// Deliver hands a record to the waiter registered for token, or parks it
// for a later Await. Never blocks.
func (c *Correlator) Deliver(token int, rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.waiters[token]; ok {
		delete(c.waiters, token)
		ch <- rec // buffered, never blocks
		return
	}
	c.parked[token] = rec
}

// Await blocks until the record for token arrives. A non-positive timeout
// blocks indefinitely; otherwise a *TimeoutError is returned when the
// deadline passes.
func (c *Correlator) Await(token int, timeout time.Duration) (Record, error) {
	c.mu.Lock()
	if rec, ok := c.parked[token]; ok {
		delete(c.parked, token)
		c.mu.Unlock()
		return rec, nil
	}
	ch := make(chan Record, 1)
	c.waiters[token] = ch
	c.mu.Unlock()

	if timeout <= 0 {
		return <-ch, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rec := <-ch:
		return rec, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.waiters, token)
		c.mu.Unlock()
		// delivery may have raced the deadline
		select {
		case rec := <-ch:
			return rec, nil
		default:
		}
		return Record{}, &oterrors.TimeoutError{Op: "mi-result", Timeout: timeout}
	}
}

// Pending returns the number of parked records, for diagnostics.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.parked)
}
