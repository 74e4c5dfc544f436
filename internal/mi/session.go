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
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/probelab/ontarget/internal/capture"
	otlog "github.com/probelab/ontarget/internal/log"
	oterrors "github.com/probelab/ontarget/pkg/errors"
)

// AuxResponseMarker tags console output produced by the auxiliary
// debugger-resident commands so it can be correlated by its own token.
const AuxResponseMarker = "OT_RESP"

const (
	firstMIToken  = 1000
	firstAuxToken = 8000
)

// Session drives the MI channel: it owns the write side, allocates command
// tokens and runs the single reader goroutine that feeds the Correlator and
// the Router.
type Session struct {
	writer io.Writer

	mu           sync.Mutex // guards token counters and the write side
	nextMIToken  int
	nextAuxToken int

	corr    *Correlator
	console *Correlator
	router  *Router
	guard   *Guard
	ring    *capture.Ring
	logger  *slog.Logger

	retries int

	done chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithCapture sets the protocol trace ring.
func WithCapture(ring *capture.Ring) Option {
	return func(s *Session) { s.ring = ring }
}

// WithRetries sets the number of times a blocking call is retried on the
// transient invalid-hex-digit reply. Default zero: no retries.
func WithRetries(n int) Option {
	return func(s *Session) { s.retries = n }
}

// NewSession creates a session over the debugger's MI pipes and starts the
// reader goroutine.
func NewSession(r io.Reader, w io.Writer, opts ...Option) *Session {
	s := &Session{
		writer:       w,
		nextMIToken:  firstMIToken,
		nextAuxToken: firstAuxToken,
		corr:         NewCorrelator(),
		console:      NewCorrelator(),
		guard:        NewGuard(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.ring == nil {
		s.ring = capture.NewRing(false, 0)
	}
	s.router = NewRouter(s.logger)

	go s.read(r)
	return s
}

// Router returns the notification router.
func (s *Session) Router() *Router { return s.router }

// Guard returns the context guard.
func (s *Session) Guard() *Guard { return s.guard }

// Capture returns the protocol trace ring.
func (s *Session) Capture() *capture.Ring { return s.ring }

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Done is closed when the reader goroutine exits, i.e. when the debugger
// side of the channel is gone.
func (s *Session) Done() <-chan struct{} { return s.done }

// Send writes "<token><command>" to the channel without blocking on the
// reply and returns the allocated token. It fails fast when the context
// guard is not in Normal mode.
func (s *Session) Send(cmd string) (int, error) {
	if err := s.checkContext(); err != nil {
		return -1, err
	}

	s.mu.Lock()
	token := s.nextMIToken
	s.nextMIToken++
	s.ring.Record("[TO GDB] %d %s", token, cmd)
	_, err := fmt.Fprintf(s.writer, "%d%s\n", token, cmd)
	s.mu.Unlock()

	commandsTotal.WithLabelValues("async").Inc()
	otlog.Trace(s.logger, "mi write", slog.Int(otlog.TokenKey, token), slog.String(otlog.CommandKey, cmd))

	if err != nil {
		s.logger.Warn("I/O error on gdb channel; the session may have been closed prematurely",
			slog.Any("error", err))
		return token, oterrors.Wrap(err, "writing mi command")
	}
	return token, nil
}

// Call sends a command and blocks until its result record arrives or the
// timeout elapses. A non-positive timeout blocks indefinitely. Result
// classes done/running/stopped all count as successful completion; run-state
// truth comes only from notify records.
func (s *Session) Call(cmd string, timeout time.Duration) (Payload, error) {
	payload, err := s.call(cmd, timeout)
	for retries := s.retries; err != nil && retries > 0; retries-- {
		var pe *oterrors.ProtocolError
		if !oterrors.As(err, &pe) || !strings.Contains(pe.Message, "Reply contains invalid hex digit") {
			break
		}
		s.logger.Warn("retrying command after transient invalid-hex-digit reply",
			slog.String(otlog.CommandKey, cmd))
		callRetries.Inc()
		payload, err = s.call(cmd, timeout)
	}
	return payload, err
}

func (s *Session) call(cmd string, timeout time.Duration) (Payload, error) {
	token, err := s.Send(cmd)
	if err != nil {
		return nil, err
	}
	commandsTotal.WithLabelValues("blocking").Inc()

	rec, err := s.corr.Await(token, timeout)
	if err != nil {
		if oterrors.IsTimeout(err) {
			resultTimeouts.Inc()
			return nil, &oterrors.TimeoutError{Op: "mi-result", Timeout: timeout, Detail: cmd}
		}
		return nil, err
	}

	switch rec.Class {
	case ClassDone, ClassRunning, ClassStopped:
		return rec.Payload, nil
	case ClassError:
		return nil, s.classifyError(cmd, rec)
	default:
		return nil, &oterrors.ProtocolError{
			Command: cmd,
			Message: fmt.Sprintf("unexpected result class %q", rec.Class),
		}
	}
}

// classifyError maps an error result to the taxonomy. Two known-benign
// conditions are downgraded to warnings and report success with an empty
// payload.
func (s *Session) classifyError(cmd string, rec Record) error {
	msg := rec.Payload.String("msg")

	switch {
	case strings.Contains(msg, "stopped while in a function called from GDB"):
		s.logger.Warn("target execution was stopped by GDB. Likely cause: a halting breakpoint " +
			"was hit while executing a target function via Eval. Use an intercept breakpoint " +
			"in this situation; halting breakpoints are only safe while the target is free running.")
		return nil
	case strings.Contains(msg, "Unknown remote qXfer reply: OK"):
		s.logger.Warn("received benign gdb message", slog.String("msg", msg))
		return nil
	case strings.Contains(msg, "Cannot execute this command while the target is running"):
		return &oterrors.ProtocolError{Command: cmd, Message: "target must be halted to execute the requested command"}
	default:
		return &oterrors.ProtocolError{Command: cmd, Message: msg}
	}
}

// NextAuxToken allocates a token from the auxiliary console command space.
func (s *Session) NextAuxToken() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextAuxToken
	s.nextAuxToken++
	return id
}

// CallAux runs a debugger-resident console command that reports its outcome
// via a tagged console line, and blocks until that line arrives. The
// command is invoked with the allocated auxiliary token as its last
// argument.
func (s *Session) CallAux(cmd string, timeout time.Duration) (string, error) {
	id := s.NextAuxToken()
	commandsTotal.WithLabelValues("console").Inc()

	if _, err := s.Call(fmt.Sprintf("-interpreter-exec console \"%s %d\"", cmd, id), timeout); err != nil {
		return "", err
	}

	rec, err := s.console.Await(id, timeout)
	if err != nil {
		if oterrors.IsTimeout(err) {
			return "", &oterrors.TimeoutError{Op: "console-response", Timeout: timeout, Detail: cmd}
		}
		return "", err
	}
	return rec.Text, nil
}

// checkContext fails fast when the channel is owned by another actor, with
// a more specific message while a breakpoint intercept is in progress.
func (s *Session) checkContext() error {
	switch s.guard.Mode() {
	case ContextNormal:
		return nil
	case ContextIntercept:
		return &oterrors.ContextViolationError{
			Message: "cannot use normal commands while executing in an intercept context; " +
				"use the Exec/Eval methods of the intercepting breakpoint instead",
		}
	default:
		return &oterrors.ContextViolationError{
			Message: "cannot use normal commands while not executing in the normal context",
		}
	}
}

// read is the session reader: it classifies every incoming line and
// deposits it with the correlator or the router. It must never block on
// subscriber work.
func (s *Session) read(r io.Reader) {
	defer close(s.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		s.ring.Record("  [FROM GDB] %s", line)
		otlog.Trace(s.logger, "mi read", slog.String("line", line))

		rec := ParseLine(line)
		recordsTotal.WithLabelValues(string(rec.Kind)).Inc()

		switch rec.Kind {
		case KindResult:
			if rec.Token < 0 {
				s.logger.Warn("result record without token", slog.String("line", line))
			}
			s.corr.Deliver(rec.Token, rec)

		case KindNotify:
			s.router.Dispatch(rec)

		case KindConsole:
			s.deliverConsole(rec)

		case KindLog, KindTarget, KindOutput:
			// stream noise; already traced above
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Warn("mi reader stopped", slog.Any("error", err))
		return
	}
	s.logger.Debug("mi channel closed")
}

// deliverConsole correlates tagged auxiliary responses by their token;
// untagged console output is parked under token zero.
func (s *Session) deliverConsole(rec Record) {
	if !strings.Contains(rec.Text, AuxResponseMarker) {
		s.console.Deliver(0, rec)
		return
	}

	fields := strings.Split(rec.Text, ",")
	if len(fields) < 2 {
		s.logger.Warn("malformed auxiliary response", slog.String("text", rec.Text))
		return
	}
	id, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		s.logger.Warn("auxiliary response with bad token", slog.String("text", rec.Text))
		return
	}
	s.console.Deliver(id, rec)
}
