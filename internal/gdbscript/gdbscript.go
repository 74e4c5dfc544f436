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

// Package gdbscript carries the debugger-resident command script and
// materializes it on disk so a gdb instance can source it.
package gdbscript

import (
	_ "embed"
	"os"
	"path/filepath"

	oterrors "github.com/probelab/ontarget/pkg/errors"
)

//go:embed resident.py
var resident []byte

// Command names installed by the resident script.
const (
	CmdBpCmd     = "ontarget-bp-cmd"
	CmdBpTcp     = "ontarget-bp-tcp"
	CmdBpDelete  = "ontarget-bp-delete"
	CmdIsRunning = "ontarget-is-running"
)

// Materialize writes the resident script into dir and returns its path.
// An empty dir uses a fresh temporary directory.
func Materialize(dir string) (string, error) {
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "ontarget-gdb-")
		if err != nil {
			return "", oterrors.Wrap(err, "creating script directory")
		}
	}

	path := filepath.Join(dir, "ontarget_resident.py")
	if err := os.WriteFile(path, resident, 0o644); err != nil {
		return "", oterrors.Wrap(err, "writing resident script")
	}
	return path, nil
}

// SourceCommand returns the gdb command that loads the script at path.
func SourceCommand(path string) string {
	return "source " + filepath.ToSlash(path)
}
