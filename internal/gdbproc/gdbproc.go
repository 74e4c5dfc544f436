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

// Package gdbproc launches and supervises the gdb client process whose MI
// pipes back the protocol session.
package gdbproc

import (
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	oterrors "github.com/probelab/ontarget/pkg/errors"
)

// Process is a running gdb client with its MI interpreter on stdio.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	logger *slog.Logger

	waitCh chan error
}

// MIArgs returns the gdb flags that select the MI3 interpreter and suppress
// init files. Callers prepend these to their own arguments.
func MIArgs() []string {
	return []string{"--interpreter", "mi3", "--quiet", "--nx"}
}

// Start launches binary with the given arguments and wires up the stdio
// pipes. gdb's stderr is passed through to the host process.
func Start(binary string, args []string, logger *slog.Logger) (*Process, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(binary, args...)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, oterrors.Wrap(err, "creating gdb stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, oterrors.Wrap(err, "creating gdb stdout pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, &oterrors.ConnectionLostError{Location: "gdb start", Cause: err}
	}
	logger.Debug("gdb client started", slog.String("binary", binary), slog.Int("pid", cmd.Process.Pid))

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		logger: logger,
		waitCh: make(chan error, 1),
	}
	go func() { p.waitCh <- cmd.Wait() }()
	return p, nil
}

// Reader is gdb's MI output stream.
func (p *Process) Reader() io.Reader { return p.stdout }

// Writer is gdb's MI command stream.
func (p *Process) Writer() io.Writer { return p.stdin }

// Pid returns the gdb process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Exited reports whether the process has terminated.
func (p *Process) Exited() bool {
	select {
	case err := <-p.waitCh:
		p.waitCh <- err
		return true
	default:
		return false
	}
}

// Stop closes gdb's stdin so it can exit cleanly, then kills it if it has
// not terminated within the grace period.
func (p *Process) Stop(grace time.Duration) error {
	p.stdin.Close()

	select {
	case err := <-p.waitCh:
		p.waitCh <- err
		return nil
	case <-time.After(grace):
	}

	p.logger.Warn("gdb did not exit in time, killing it", slog.Int("pid", p.Pid()))
	if err := p.cmd.Process.Kill(); err != nil {
		return oterrors.Wrap(err, "killing gdb")
	}
	err := <-p.waitCh
	p.waitCh <- err
	return nil
}
