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
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/probelab/ontarget/internal/capture"
	"github.com/probelab/ontarget/internal/config"
	"github.com/probelab/ontarget/internal/gdbscript"
	otlog "github.com/probelab/ontarget/internal/log"
	"github.com/probelab/ontarget/internal/mi"
	oterrors "github.com/probelab/ontarget/pkg/errors"
)

// Target is the device under test as seen through the debugger session.
type Target struct {
	sess    *mi.Session
	monitor Monitor
	cfg     *config.Config
	logger  *slog.Logger

	state *stateTracker
	disp  *dispatcher

	bgMu  sync.Mutex
	bgErr error
}

// NewSession builds the MI session for a debugger's stdio pipes, with the
// configured write-retry budget and protocol capture ring applied. It is
// the constructor to pair with New when driving a real debugger process.
func NewSession(r io.Reader, w io.Writer, cfg *config.Config, logger *slog.Logger) *mi.Session {
	if cfg == nil {
		cfg = config.Default()
	}
	return mi.NewSession(r, w,
		mi.WithLogger(logger),
		mi.WithRetries(cfg.GDB.WriteRetries),
		mi.WithCapture(capture.NewRing(cfg.Capture.Enabled, cfg.Capture.Records)),
	)
}

// New wires a Target onto an established session. The run-state subscriber
// registers with high priority so state truth updates before any breakpoint
// dispatch sees the same notification.
func New(sess *mi.Session, monitor Monitor, cfg *config.Config, logger *slog.Logger) *Target {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = otlog.WithComponent(logger, "target")

	t := &Target{
		sess:    sess,
		monitor: monitor,
		cfg:     cfg,
		logger:  logger,
		state:   newStateTracker(),
		disp:    newDispatcher(logger),
	}

	sub := &stateSubscriber{t: t}
	sess.Router().Subscribe(sub, "stopped", "", true)
	sess.Router().Subscribe(sub, "running", "", true)
	sess.Router().Subscribe(t.disp.subscriber(), "stopped", "breakpoint-hit", false)

	return t
}

// stateSubscriber feeds debugger notifications into the run-state machine.
// It does its work synchronously inside the router call; the update is a
// mutex-guarded field write and a channel broadcast, nothing more.
type stateSubscriber struct {
	t *Target
}

func (s *stateSubscriber) Notify(rec mi.Record) {
	switch rec.Class {
	case "stopped":
		reason := rec.Reason()
		s.t.sess.Capture().Record("[TARGET STOPPED] reason=%s", reason)
		s.t.state.markStopped(reason)
	case "running":
		s.t.sess.Capture().Record("[TARGET RUNNING]")
		s.t.state.markRunning()
	}
}

// Session exposes the underlying MI session.
func (t *Target) Session() *mi.Session { return t.sess }

// Monitor returns the debug monitor in use.
func (t *Target) Monitor() Monitor { return t.monitor }

// Config returns the engine configuration.
func (t *Target) Config() *config.Config { return t.cfg }

// Close shuts down the breakpoint dispatcher.
func (t *Target) Close() {
	t.disp.close()
}

// RegisterBreakpoint routes hit notifications for the given debugger
// breakpoint number to h.
func (t *Target) RegisterBreakpoint(num int, h Hittable) {
	t.disp.register(num, h)
}

// UnregisterBreakpoint stops routing hits for the given number.
func (t *Target) UnregisterBreakpoint(num int) {
	t.disp.unregister(num)
}

// ReportBackgroundErr records an error raised on a background worker, e.g.
// inside a breakpoint reaction. Only the first error is kept; later ones
// are logged and dropped.
func (t *Target) ReportBackgroundErr(err error) {
	if err == nil {
		return
	}
	t.bgMu.Lock()
	defer t.bgMu.Unlock()
	if t.bgErr != nil {
		t.logger.Warn("additional background error dropped", slog.Any("error", err))
		return
	}
	t.bgErr = err
}

// BackgroundErr returns the pending background error without clearing it.
func (t *Target) BackgroundErr() error {
	t.bgMu.Lock()
	defer t.bgMu.Unlock()
	return t.bgErr
}

// TakeBackgroundErr returns and clears the pending background error.
func (t *Target) TakeBackgroundErr() error {
	t.bgMu.Lock()
	defer t.bgMu.Unlock()
	err := t.bgErr
	t.bgErr = nil
	return err
}

// Connect runs the session bring-up sequence against the gdbserver at
// serverAddr and installs the debugger-resident commands from scriptPath.
func (t *Target) Connect(serverAddr, scriptPath string) error {
	if _, err := t.sess.Call("-gdb-set mi-async on", 5*time.Second); err != nil {
		return oterrors.Wrap(err, "enabling async mi mode")
	}
	if _, err := t.sess.Call("-target-select remote "+serverAddr, t.cfg.GDB.ConnectTimeout); err != nil {
		return oterrors.Wrap(err, "connecting to gdbserver "+serverAddr)
	}
	if _, err := t.CLIExec("set mem inaccessible-by-default off"); err != nil {
		return oterrors.Wrap(err, "configuring memory access")
	}
	if scriptPath != "" {
		if _, err := t.CLIExec(gdbscript.SourceCommand(scriptPath)); err != nil {
			return oterrors.Wrap(err, "installing resident commands")
		}
	}
	t.logger.Info("connected to gdbserver", slog.String("addr", serverAddr))
	return nil
}

// Exec runs an MI command and blocks until its result record arrives.
func (t *Target) Exec(cmd string) (mi.Payload, error) {
	return t.sess.Call(cmd, 0)
}

// ExecTimeout is Exec with an explicit result timeout.
func (t *Target) ExecTimeout(cmd string, timeout time.Duration) (mi.Payload, error) {
	return t.sess.Call(cmd, timeout)
}

// ExecNB sends an MI command without waiting for its result and returns the
// command token.
func (t *Target) ExecNB(cmd string) (int, error) {
	return t.sess.Send(cmd)
}

// CLIExec runs a console command through the MI channel. The returned
// payload only reflects command status, never console output.
func (t *Target) CLIExec(cmd string) (mi.Payload, error) {
	return t.sess.Call(fmt.Sprintf("-interpreter-exec console %q", cmd), 0)
}

// MonitorCmd forwards a command to the debug monitor.
func (t *Target) MonitorCmd(cmd string) error {
	_, err := t.CLIExec("monitor " + cmd)
	return err
}

// Eval evaluates an expression in the current program context and converts
// the result string into the closest Go type. The target must be halted;
// expressions may have side effects, including target function calls.
func (t *Target) Eval(expr string) (any, error) {
	payload, err := t.sess.Call(fmt.Sprintf("-data-evaluate-expression %q", expr), 0)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		t.logger.Warn("evaluation produced no value", slog.String("expr", expr))
		return nil, nil
	}

	raw := payload.String("value")
	if strings.Contains(raw, "<optimized out>") {
		t.logger.Warn("accessed entity is optimized out in the target binary", slog.String("expr", expr))
	}
	return Cast(raw), nil
}

// EvalInt evaluates an expression that must yield a number.
func (t *Target) EvalInt(expr string) (int64, error) {
	v, err := t.Eval(expr)
	if err != nil {
		return 0, err
	}
	s := fmt.Sprintf("%v", v)
	n, ok := CastInt(s)
	if !ok {
		return 0, &oterrors.ProtocolError{
			Command: expr,
			Message: fmt.Sprintf("expression did not evaluate to a number (got %q)", s),
		}
	}
	return n, nil
}

// Load downloads firmware onto the device. loadELF provides the code image,
// symbolELF the debug symbols (empty reuses loadELF's symbols). Flash
// programming is set up through the monitor first.
func (t *Target) Load(loadELF, symbolELF string, enableFlash bool) error {
	if loadELF != "" {
		if _, err := t.Exec("-file-exec-file " + loadELF); err != nil {
			return err
		}
	}
	if symbolELF != "" {
		// -file-symbol-file without arguments clears the symbol table first
		if _, err := t.Exec("-file-symbol-file"); err != nil {
			return err
		}
		if _, err := t.Exec("-file-symbol-file " + symbolELF); err != nil {
			return err
		}
	}

	for _, cmd := range t.monitor.FlashSetupCommands(enableFlash) {
		if err := t.MonitorCmd(cmd); err != nil {
			return err
		}
	}

	if loadELF != "" {
		if _, err := t.Exec("-target-download"); err != nil {
			return err
		}
	}
	return nil
}

// Reset resets the device through the debug monitor and flushes the
// debugger's register cache.
func (t *Target) Reset() error {
	if err := t.MonitorCmd(t.monitor.ResetCommand()); err != nil {
		return err
	}
	return t.RegFlushCache()
}

// IsRunning reports the tracked run state.
func (t *Target) IsRunning() bool { return t.state.isRunning() }

// IsHalted reports the tracked run state.
func (t *Target) IsHalted() bool { return !t.state.isRunning() }

// StopReason returns the reason of the most recent stop transition.
func (t *Target) StopReason() string { return t.state.lastReason() }

// Cont resumes the device. A no-op when it is already running; otherwise it
// returns once the running notification has been observed.
func (t *Target) Cont() error {
	if t.state.isRunning() {
		return nil
	}
	if _, err := t.Exec("-exec-continue"); err != nil {
		return err
	}
	return t.WaitRunning(0)
}

// Halt stops the device. A no-op when it is already halted. When the core
// halts inside an IT block it is single stepped out of the block first,
// unless the configuration allows halting there.
func (t *Target) Halt() error {
	if !t.state.isRunning() {
		return nil
	}
	if _, err := t.Exec("-exec-interrupt --all"); err != nil {
		return err
	}
	if err := t.WaitHalted(0, "signal-received"); err != nil {
		return err
	}

	if t.cfg.Target.HaltInITBlock {
		return nil
	}
	for {
		xpsr, err := t.EvalInt("$" + t.monitor.XPSRName())
		if err != nil {
			return err
		}
		if !XPSRInITBlock(uint32(xpsr)) {
			return nil
		}
		if err := t.StepInst(); err != nil {
			return err
		}
	}
}

// Step executes one source line. The device must be halted.
func (t *Target) Step() error {
	return t.step("-exec-step")
}

// StepInst executes one machine instruction. The device must be halted.
func (t *Target) StepInst() error {
	return t.step("-exec-step-instruction")
}

func (t *Target) step(cmd string) error {
	if t.state.isRunning() {
		return &oterrors.ContextViolationError{
			Message: "target must be halted to perform stepping",
		}
	}
	// the state passes through running and back to stopped; both
	// notifications may land before a waiter is in place, so wait on the
	// next stop edge rather than the running phase
	seq := t.state.haltSeq()
	if _, err := t.Exec(cmd); err != nil {
		return err
	}
	return t.waitNextHalt(seq, "end-stepping-range")
}

// waitNextHalt blocks until a stop transition later than seq, then applies
// the usual reason check and timeout handling.
func (t *Target) waitNextHalt(seq uint64, expectedReason string) error {
	timeout := t.cfg.Target.StateChangeTimeout
	reason, err := t.state.waitHaltSince(seq, "wait-halted", timeout)
	if err != nil {
		t.sess.Capture().Record("[WAIT_HALTED FAILED]")
		t.sess.Capture().Dump(t.logger)
		return err
	}
	if expectedReason != "" && reason != expectedReason {
		t.logger.Warn("target stopped with unexpected reason",
			slog.String(otlog.ReasonKey, reason),
			slog.String("expected", expectedReason))
	}
	return nil
}

// Ret returns from the currently executing function without running the
// rest of its body. With a value the CLI command is used; -exec-return
// cannot carry one. The device stays halted.
func (t *Target) Ret(retVal string) error {
	if retVal == "" {
		_, err := t.Exec("-exec-return")
		return err
	}
	_, err := t.CLIExec("return " + retVal)
	return err
}

// Finish runs the currently executing function to completion and halts at
// the call site.
func (t *Target) Finish() error {
	seq := t.state.haltSeq()
	if _, err := t.Exec("-exec-finish"); err != nil {
		return err
	}
	return t.waitNextHalt(seq, "function-finished")
}

// WaitHalted blocks until the device halts. A non-positive timeout uses the
// configured state-change timeout. A mismatched stop reason is logged, not
// raised; run-state truth matters more than the label. On timeout the
// protocol trace ring is dumped and a *TimeoutError returned.
func (t *Target) WaitHalted(timeout time.Duration, expectedReason string) error {
	if timeout <= 0 {
		timeout = t.cfg.Target.StateChangeTimeout
	}

	reason, err := t.state.wait(false, "wait-halted", timeout)
	if err != nil {
		t.sess.Capture().Record("[WAIT_HALTED FAILED]")
		t.sess.Capture().Dump(t.logger)
		return err
	}

	if expectedReason != "" && reason != expectedReason {
		t.logger.Warn("target stopped with unexpected reason",
			slog.String(otlog.ReasonKey, reason),
			slog.String("expected", expectedReason))
	}
	return nil
}

// WaitRunning blocks until the device runs. A non-positive timeout uses the
// configured state-change timeout. On timeout the protocol trace ring is
// dumped and a *TimeoutError returned.
func (t *Target) WaitRunning(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = t.cfg.Target.StateChangeTimeout
	}

	if _, err := t.state.wait(true, "wait-running", timeout); err != nil {
		t.sess.Capture().Record("[WAIT_RUNNING FAILED]")
		t.sess.Capture().Dump(t.logger)
		return err
	}
	return nil
}

// QueryRunning asks the debugger-resident command for the live run state,
// bypassing the tracked state. Works while the target is running because
// the resident command answers over the console channel.
func (t *Target) QueryRunning() (bool, error) {
	text, err := t.sess.CallAux(gdbscript.CmdIsRunning, t.cfg.Target.StateChangeTimeout)
	if err != nil {
		return false, err
	}
	fields := strings.Split(text, ",")
	if len(fields) < 4 {
		return false, &oterrors.ProtocolError{
			Command: gdbscript.CmdIsRunning,
			Message: "malformed run-state response: " + text,
		}
	}
	return strings.TrimSpace(fields[3]) == "YES", nil
}

// BpClearAll deletes every breakpoint: the resident non-halting ones, the
// debugger's own table, and monitor-side hardware breakpoints.
func (t *Target) BpClearAll() error {
	if _, err := t.CLIExec(gdbscript.CmdBpDelete); err != nil {
		return err
	}
	if _, err := t.Exec("-break-delete"); err != nil {
		return err
	}
	if cmd := t.monitor.ClearBreakpointsCommand(); cmd != "" {
		return t.MonitorCmd(cmd)
	}
	return nil
}

// BpCount returns the number of rows in the debugger's breakpoint table.
func (t *Target) BpCount() (int, error) {
	payload, err := t.Exec("-break-list")
	if err != nil {
		return 0, err
	}
	rows := payload.Sub("BreakpointTable").String("nr_rows")
	n, err := strconv.Atoi(rows)
	if err != nil {
		return 0, &oterrors.ProtocolError{
			Command: "-break-list",
			Message: "breakpoint table without row count",
		}
	}
	return n, nil
}

// RegValues reads register contents. fmt is a debugger format letter
// (x, d, ...); an empty regs slice reads all registers.
func (t *Target) RegValues(format string, regs []int) ([]mi.Payload, error) {
	cmd := "-data-list-register-values --skip-unavailable " + format
	if len(regs) > 0 {
		cmd += " " + joinInts(regs)
	}
	payload, err := t.Exec(cmd)
	if err != nil {
		return nil, err
	}
	return asPayloadList(payload["register-values"]), nil
}

// RegNames lists register names; an empty regs slice lists all.
func (t *Target) RegNames(regs []int) ([]string, error) {
	cmd := "-data-list-register-names"
	if len(regs) > 0 {
		cmd += " " + joinInts(regs)
	}
	payload, err := t.Exec(cmd)
	if err != nil {
		return nil, err
	}
	return asStringList(payload["register-names"]), nil
}

// RegChanged lists the numbers of registers changed since the last read.
func (t *Target) RegChanged() ([]string, error) {
	payload, err := t.Exec("-data-list-changed-registers")
	if err != nil {
		return nil, err
	}
	return asStringList(payload["changed-registers"]), nil
}

// RegFlushCache drops the debugger's register cache, needed after state
// changes the debugger is unaware of (e.g. a monitor reset).
func (t *Target) RegFlushCache() error {
	_, err := t.CLIExec("flushregs")
	return err
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " ")
}

func asPayloadList(v any) []mi.Payload {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]mi.Payload, 0, len(items))
	for _, item := range items {
		if p, ok := item.(mi.Payload); ok {
			out = append(out, p)
		}
	}
	return out
}

func asStringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
