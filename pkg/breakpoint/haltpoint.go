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

package breakpoint

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	otlog "github.com/probelab/ontarget/internal/log"
	"github.com/probelab/ontarget/internal/mi"
	oterrors "github.com/probelab/ontarget/pkg/errors"
	"github.com/probelab/ontarget/pkg/target"
)

// HaltPoint is a breakpoint that halts the device when hit. A test
// goroutine blocks in WaitComplete until the hit has been processed; the
// optional OnReached hook runs on the dispatcher worker while the device is
// halted.
type HaltPoint struct {
	tgt      *target.Target
	logger   *slog.Logger
	location string
	num      int
	addr     string

	onReached func(*HaltPoint) error

	mu   sync.Mutex
	hits int

	// single-slot completion signal: one waiter per hit
	done chan struct{}
}

// HaltOption configures a HaltPoint.
type HaltOption func(*haltConfig)

type haltConfig struct {
	temporary bool
	onReached func(*HaltPoint) error
}

// Temporary makes the breakpoint self-delete after the first hit.
func Temporary() HaltOption {
	return func(c *haltConfig) { c.temporary = true }
}

// OnReached installs a hook that runs on every hit while the device is
// halted. Hook errors land in the Target's background error slot.
func OnReached(fn func(*HaltPoint) error) HaltOption {
	return func(c *haltConfig) { c.onReached = fn }
}

// NewHaltPoint inserts a halting breakpoint at location and registers it
// with the hit dispatcher.
func NewHaltPoint(tgt *target.Target, location string, opts ...HaltOption) (*HaltPoint, error) {
	var cfg haltConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	cmd := "-break-insert "
	if cfg.temporary {
		cmd += "-t "
	}
	payload, err := tgt.Exec(cmd + location)
	if err != nil {
		return nil, oterrors.Wrap(err, "inserting breakpoint at "+location)
	}

	bkpt := payload.Sub("bkpt")
	num, convErr := strconv.Atoi(bkpt.String("number"))
	if len(bkpt) == 0 || convErr != nil {
		return nil, &oterrors.ProtocolError{
			Command: cmd + location,
			Message: "breakpoint insert reply without breakpoint information",
		}
	}

	h := &HaltPoint{
		tgt:       tgt,
		logger:    otlog.WithLocation(tgt.Session().Logger(), location),
		location:  location,
		num:       num,
		addr:      bkpt.String("addr"),
		onReached: cfg.onReached,
		done:      make(chan struct{}, 1),
	}
	tgt.RegisterBreakpoint(num, h)
	return h, nil
}

// Location returns the breakpoint location.
func (h *HaltPoint) Location() string { return h.location }

// Num returns the debugger-assigned breakpoint number.
func (h *HaltPoint) Num() int { return h.num }

// Addr returns the resolved code address, as reported by the debugger.
func (h *HaltPoint) Addr() string { return h.addr }

// Hits returns the number of processed hits.
func (h *HaltPoint) Hits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits
}

// HandleHit runs on the dispatcher worker. It confirms the halt, runs the
// hook and releases one waiter.
func (h *HaltPoint) HandleHit(rec mi.Record) {
	h.mu.Lock()
	h.hits++
	h.mu.Unlock()

	if err := h.tgt.WaitHalted(0, "breakpoint-hit"); err != nil {
		h.tgt.ReportBackgroundErr(err)
		return
	}
	if h.onReached != nil {
		if err := h.onReached(h); err != nil {
			h.logger.Warn("breakpoint hook failed", slog.Any("error", err))
			h.tgt.ReportBackgroundErr(err)
		}
	}

	select {
	case h.done <- struct{}{}:
	default:
		// nobody waiting and a previous signal still pending
	}
}

// WaitComplete blocks until a hit has been fully processed. A non-positive
// timeout blocks indefinitely. On timeout the protocol trace ring is dumped
// and a *TimeoutError returned.
func (h *HaltPoint) WaitComplete(timeout time.Duration) error {
	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}

	select {
	case <-h.done:
		return nil
	case <-timer:
		h.tgt.Session().Capture().Dump(h.logger)
		return &oterrors.TimeoutError{
			Op:      "wait-breakpoint",
			Timeout: timeout,
			Detail:  h.location,
		}
	}
}

// Eval evaluates an expression in the halted frame through the normal
// command path.
func (h *HaltPoint) Eval(expr string) (any, error) { return h.tgt.Eval(expr) }

// Exec runs an MI command through the normal command path.
func (h *HaltPoint) Exec(cmd string) error {
	_, err := h.tgt.Exec(cmd)
	return err
}

// Ret returns from the interrupted function, optionally with a value.
func (h *HaltPoint) Ret(retVal string) error { return h.tgt.Ret(retVal) }

// Delete removes the breakpoint from the debugger and the dispatcher.
func (h *HaltPoint) Delete() error {
	h.tgt.UnregisterBreakpoint(h.num)
	_, err := h.tgt.Exec(fmt.Sprintf("-break-delete %d", h.num))
	return err
}
