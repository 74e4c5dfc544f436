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

package errors

import (
	"fmt"
	"time"
)

// ProtocolError represents a malformed or error-status reply received on the
// GDB machine-interface channel. Message carries the text reported by the
// debugger itself.
type ProtocolError struct {
	// Command is the MI command that produced the error, if known.
	Command string

	// Message is the error text reported by the debugger.
	Message string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("gdb error for %q: %s", e.Command, e.Message)
	}
	return fmt.Sprintf("gdb error: %s", e.Message)
}

// TimeoutError represents a blocking wait that exceeded its deadline.
type TimeoutError struct {
	// Op describes the operation that timed out (e.g. "wait-halted").
	Op string

	// Timeout is the deadline that was exceeded.
	Timeout time.Duration

	// Detail is optional extra context, such as a breakpoint location.
	Detail string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	return msg
}

// ContextViolationError represents an attempt to use the normal command path
// while the MI context is held by another actor, or to release a context not
// owned by the caller.
type ContextViolationError struct {
	// Message is the human-readable violation description.
	Message string
}

// Error implements the error interface.
func (e *ContextViolationError) Error() string {
	return fmt.Sprintf("context violation: %s", e.Message)
}

// ConnectionLostError represents a reset or aborted intercept socket. It is
// logged and treated as an implicit breakpoint delete, never re-raised into
// test code.
type ConnectionLostError struct {
	// Location is the breakpoint location whose socket was lost.
	Location string

	// Cause is the underlying socket error.
	Cause error
}

// Error implements the error interface.
func (e *ConnectionLostError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("intercept connection for %q lost: %v", e.Location, e.Cause)
	}
	return fmt.Sprintf("intercept connection for %q lost", e.Location)
}

// Unwrap returns the underlying socket error.
func (e *ConnectionLostError) Unwrap() error {
	return e.Cause
}

// NotFoundError represents a resource that does not exist, such as a hit
// notification referencing an unknown breakpoint number.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "breakpoint", "symbol")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}
