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
	"log/slog"
	"strconv"
	"sync"

	otlog "github.com/probelab/ontarget/internal/log"
	"github.com/probelab/ontarget/internal/mi"
)

// Hittable receives breakpoint-hit notifications for its debugger-assigned
// breakpoint number. Implementations must not block the dispatcher worker
// for long; long-running reactions belong on their own goroutine.
type Hittable interface {
	HandleHit(rec mi.Record)
}

// dispatcher fans breakpoint-hit stop notifications out to the registered
// breakpoints. It runs on its own bounded queue so that slow breakpoint
// handlers never stall the session reader or the run-state update.
type dispatcher struct {
	logger *slog.Logger

	mu     sync.Mutex
	points map[int]Hittable

	queue *mi.QueueSubscriber
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	d := &dispatcher{
		logger: logger,
		points: make(map[int]Hittable),
	}
	d.queue = mi.NewQueueSubscriber("bp-dispatch", logger, 0, d.process)
	return d
}

// subscriber returns the router-facing side of the dispatcher.
func (d *dispatcher) subscriber() mi.Subscriber { return d.queue }

func (d *dispatcher) register(num int, h Hittable) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.points[num] = h
}

func (d *dispatcher) unregister(num int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.points, num)
}

func (d *dispatcher) process(rec mi.Record) error {
	numStr := rec.Payload.String("bkptno")
	num, err := strconv.Atoi(numStr)
	if err != nil {
		d.logger.Warn("breakpoint hit without usable number", slog.String("bkptno", numStr))
		return nil
	}

	d.mu.Lock()
	h, ok := d.points[num]
	d.mu.Unlock()

	if !ok {
		// e.g. a breakpoint deleted concurrently with its last hit
		d.logger.Warn("hit for unknown breakpoint dropped", slog.Int(otlog.BreakpointKey, num))
		return nil
	}

	// the registry lock is not held while the breakpoint reacts
	h.HandleHit(rec)
	return nil
}

func (d *dispatcher) close() { d.queue.Close() }
