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
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/probelab/ontarget/internal/bpwire"
	"github.com/probelab/ontarget/internal/gdbscript"
	otlog "github.com/probelab/ontarget/internal/log"
	"github.com/probelab/ontarget/internal/mi"
	oterrors "github.com/probelab/ontarget/pkg/errors"
	"github.com/probelab/ontarget/pkg/target"
)

// InterceptPoint is a debugger-resident breakpoint that defers each hit to
// the host over a private TCP connection. The device is stopped inside the
// debugger's breakpoint callback for the duration of the hit, but no stop
// notification ever reaches the MI channel: to the rest of the test flow
// the device stays running.
//
// While a hit is being served, the MI channel is switched into the
// intercept context. Normal Target commands fail fast during that window;
// the breakpoint's own Exec/Eval/Ret talk to the halted frame through the
// socket instead.
type InterceptPoint struct {
	tgt      *target.Target
	logger   *slog.Logger
	location string
	connID   uuid.UUID

	conn net.Conn

	onReached func(*InterceptPoint) error

	mu   sync.Mutex
	hits int

	// inHit guards the socket command window between HIT and FINISH_CONT
	inHit atomic.Bool
	// connMu serializes request/response pairs on the shared socket so
	// concurrent hook-window callers never consume each other's reply
	connMu sync.Mutex

	closed   atomic.Bool
	complete chan struct{}
	workerWG sync.WaitGroup
}

// InterceptOption configures an InterceptPoint.
type InterceptOption func(*interceptConfig)

type interceptConfig struct {
	onReached func(*InterceptPoint) error
}

// OnIntercept installs the hook that runs on every hit, in the intercept
// context, while the device sits in the debugger's breakpoint callback.
func OnIntercept(fn func(*InterceptPoint) error) InterceptOption {
	return func(c *interceptConfig) { c.onReached = fn }
}

// NewInterceptPoint installs an intercept breakpoint at location. It opens
// an ephemeral listener, passes its port to the debugger-resident command
// and waits for the debugger side to connect back.
func NewInterceptPoint(tgt *target.Target, location string, opts ...InterceptOption) (*InterceptPoint, error) {
	var cfg interceptConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, oterrors.Wrap(err, "opening intercept listener")
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	if _, err := tgt.CLIExec(fmt.Sprintf("%s %d %s", gdbscript.CmdBpTcp, port, location)); err != nil {
		return nil, oterrors.Wrap(err, "installing intercept breakpoint at "+location)
	}

	if tl, ok := ln.(*net.TCPListener); ok {
		if err := tl.SetDeadline(time.Now().Add(tgt.Config().GDB.ConnectTimeout)); err != nil {
			return nil, oterrors.Wrap(err, "arming connect-back deadline for "+location)
		}
	}
	conn, err := ln.Accept()
	if err != nil {
		return nil, &oterrors.ConnectionLostError{
			Location: location,
			Cause:    fmt.Errorf("debugger never connected back: %w", err),
		}
	}

	p := &InterceptPoint{
		tgt:       tgt,
		location:  location,
		connID:    uuid.New(),
		conn:      conn,
		onReached: cfg.onReached,
		complete:  make(chan struct{}, 1),
	}
	p.logger = otlog.WithLocation(tgt.Session().Logger(), location).
		With(slog.String("conn", p.connID.String()))
	p.logger.Debug("intercept breakpoint connected", slog.Int("port", port))

	registerIntercept(p)
	p.workerWG.Add(1)
	go p.serve()
	return p, nil
}

// Location returns the breakpoint location.
func (p *InterceptPoint) Location() string { return p.location }

// Hits returns the number of hits served so far.
func (p *InterceptPoint) Hits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits
}

// serve is the per-breakpoint socket worker: one iteration per hit.
func (p *InterceptPoint) serve() {
	defer p.workerWG.Done()

	for {
		msg, err := bpwire.Read(p.conn)
		if err != nil {
			if !p.closed.Load() {
				// the debugger went away underneath us
				p.logger.Warn("intercept connection lost, breakpoint implicitly deleted",
					slog.Any("error", err))
				unregisterIntercept(p)
			}
			return
		}
		if msg.Type != bpwire.MsgHit {
			p.logger.Warn("unexpected breakpoint message while waiting for a hit",
				slog.String("type", msg.Type.String()))
			continue
		}

		p.mu.Lock()
		p.hits++
		p.mu.Unlock()

		p.serveHit()

		// hold the request lock so a straggling hook-window caller
		// finishes its round trip before the target resumes
		p.connMu.Lock()
		err = bpwire.Write(p.conn, bpwire.MsgFinishCont, nil)
		p.connMu.Unlock()
		if err != nil {
			p.logger.Warn("resuming target after intercept failed", slog.Any("error", err))
			return
		}

		select {
		case p.complete <- struct{}{}:
		default:
		}
	}
}

// serveHit runs the hook inside the intercept context. Hook errors never
// prevent the device from resuming; they land in the background error slot.
func (p *InterceptPoint) serveHit() {
	guard := p.tgt.Session().Guard()
	if err := guard.Acquire(p, mi.ContextIntercept); err != nil {
		p.logger.Warn("intercept context unavailable", slog.Any("error", err))
		p.tgt.ReportBackgroundErr(err)
		return
	}
	defer func() {
		if err := guard.Release(p); err != nil {
			p.logger.Warn("releasing intercept context failed", slog.Any("error", err))
		}
	}()

	p.inHit.Store(true)
	defer p.inHit.Store(false)

	if p.onReached == nil {
		return
	}
	if err := p.onReached(p); err != nil {
		p.logger.Warn("intercept hook failed, letting target continue anyway",
			slog.Any("error", err))
		p.tgt.ReportBackgroundErr(err)
	}
}

// Exec runs a debugger command in the halted frame. Only valid inside the
// OnIntercept hook, between HIT and FINISH_CONT.
func (p *InterceptPoint) Exec(cmd string) error {
	msg, err := p.roundTrip(bpwire.MsgExec, cmd)
	if err != nil {
		return err
	}
	if msg.Type == bpwire.MsgExcept {
		return &oterrors.ProtocolError{
			Command: cmd,
			Message: "execution in breakpoint context failed: " + msg.Text(),
		}
	}
	return nil
}

// Eval evaluates an expression in the halted frame and converts the result
// like Target.Eval. Only valid inside the OnIntercept hook.
func (p *InterceptPoint) Eval(expr string) (any, error) {
	msg, err := p.roundTrip(bpwire.MsgEval, expr)
	if err != nil {
		return nil, err
	}
	if msg.Type == bpwire.MsgExcept {
		return nil, &oterrors.ProtocolError{
			Command: expr,
			Message: "evaluation in breakpoint context failed: " + msg.Text(),
		}
	}

	text := msg.Text()
	if strings.Contains(text, "<optimized out>") {
		p.logger.Warn("accessed entity is optimized out in the target binary",
			slog.String("expr", expr))
	}
	return target.Cast(text), nil
}

// Ret returns from the intercepted function, optionally with a value.
func (p *InterceptPoint) Ret(retVal string) error {
	if retVal == "" {
		return p.Exec("return")
	}
	return p.Exec("return " + retVal)
}

func (p *InterceptPoint) roundTrip(typ bpwire.MsgType, payload string) (bpwire.Msg, error) {
	if !p.inHit.Load() {
		return bpwire.Msg{}, &oterrors.ContextViolationError{
			Message: "breakpoint commands are only valid inside the intercept hook",
		}
	}

	p.connMu.Lock()
	defer p.connMu.Unlock()

	if err := bpwire.WriteText(p.conn, typ, payload); err != nil {
		return bpwire.Msg{}, err
	}
	msg, err := bpwire.Read(p.conn)
	if err != nil {
		return bpwire.Msg{}, &oterrors.ConnectionLostError{Location: p.location, Cause: err}
	}
	return msg, nil
}

// WaitComplete blocks until a hit has been fully served, FINISH_CONT
// included. A non-positive timeout uses the configured intercept wait
// timeout, so a missed breakpoint cannot hang a test forever.
func (p *InterceptPoint) WaitComplete(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.tgt.Config().Target.InterceptWaitTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.complete:
		return nil
	case <-timer.C:
		return &oterrors.TimeoutError{
			Op:      "wait-intercept",
			Timeout: timeout,
			Detail:  p.location,
		}
	}
}

// Delete removes the breakpoint from the debugger and tears the socket
// down. Safe to call more than once.
func (p *InterceptPoint) Delete() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	// ask the debugger side first so its socket end goes away cleanly
	_, err := p.tgt.ExecTimeout(
		fmt.Sprintf("-interpreter-exec console %q", gdbscript.CmdBpDelete+" "+p.location),
		time.Second)
	if err != nil {
		p.logger.Warn("deleting resident breakpoint failed", slog.Any("error", err))
	}

	p.conn.Close()
	p.workerWG.Wait()
	unregisterIntercept(p)
	return nil
}

// package registry of live intercept points, for per-test cleanup

var (
	interceptMu  sync.Mutex
	interceptAll []*InterceptPoint
)

func registerIntercept(p *InterceptPoint) {
	interceptMu.Lock()
	defer interceptMu.Unlock()
	interceptAll = append(interceptAll, p)
}

func unregisterIntercept(p *InterceptPoint) {
	interceptMu.Lock()
	defer interceptMu.Unlock()
	for i, other := range interceptAll {
		if other == p {
			interceptAll = append(interceptAll[:i], interceptAll[i+1:]...)
			return
		}
	}
}

// DeleteAll deletes every live intercept point, concurrently since each
// delete waits out its own socket worker. Used by test teardown.
func DeleteAll() error {
	interceptMu.Lock()
	points := make([]*InterceptPoint, len(interceptAll))
	copy(points, interceptAll)
	interceptMu.Unlock()

	var g errgroup.Group
	for _, p := range points {
		g.Go(p.Delete)
	}
	return g.Wait()
}
