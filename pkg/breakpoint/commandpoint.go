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
	"encoding/json"
	"strings"

	"github.com/probelab/ontarget/internal/gdbscript"
	oterrors "github.com/probelab/ontarget/pkg/errors"
	"github.com/probelab/ontarget/pkg/target"
)

// CommandPoint is a debugger-resident breakpoint that runs a fixed command
// list on every hit and never halts. The host is not involved in a hit, so
// there are no hit counts and nothing to wait for.
type CommandPoint struct {
	tgt      *target.Target
	location string
}

// NewCommandPoint installs a command breakpoint at location. The commands
// run inside the debugger on every hit, in order.
func NewCommandPoint(tgt *target.Target, location string, commands []string) (*CommandPoint, error) {
	// location and commands travel JSON-serialized inside a CLI command,
	// so inner quotes need escaping
	args, err := json.Marshal(append([]string{location}, commands...))
	if err != nil {
		return nil, oterrors.Wrap(err, "serializing breakpoint commands")
	}
	escaped := strings.ReplaceAll(string(args), `"`, `\"`)

	if _, err := tgt.Exec(gdbscript.CmdBpCmd + " " + escaped); err != nil {
		return nil, oterrors.Wrap(err, "installing command breakpoint at "+location)
	}
	return &CommandPoint{tgt: tgt, location: location}, nil
}

// Location returns the breakpoint location.
func (c *CommandPoint) Location() string { return c.location }

// Hits always reports zero: hits are handled entirely inside the debugger.
func (c *CommandPoint) Hits() int { return 0 }

// Delete removes the breakpoint by location.
func (c *CommandPoint) Delete() error {
	_, err := c.tgt.CLIExec(gdbscript.CmdBpDelete + " " + c.location)
	return err
}
