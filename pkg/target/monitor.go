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

import "fmt"

// Monitor abstracts the vendor-specific debug monitor behind the gdbserver.
// Implementations only supply command strings; the Target runs them through
// the CLI "monitor" prefix.
type Monitor interface {
	// Name identifies the monitor in logs.
	Name() string
	// ResetCommand is the monitor command that resets the device.
	ResetCommand() string
	// XPSRName is the register name under which the monitor exposes the
	// Cortex-M program status register.
	XPSRName() string
	// FlashSetupCommands returns the monitor commands run before a firmware
	// download, with flash programming switched on or off.
	FlashSetupCommands(enableDownload bool) []string
	// ClearBreakpointsCommand clears monitor-side breakpoints. Empty when
	// the monitor has no such command.
	ClearBreakpointsCommand() string
}

// JLink is the monitor of the Segger J-Link gdbserver.
type JLink struct {
	// Device is the exact device name as known by the J-Link software.
	Device string
}

func (m JLink) Name() string                    { return "jlink" }
func (m JLink) ResetCommand() string            { return "reset" }
func (m JLink) XPSRName() string                { return "xpsr" }
func (m JLink) ClearBreakpointsCommand() string { return "clrbp" }

func (m JLink) FlashSetupCommands(enableDownload bool) []string {
	flag := 0
	if enableDownload {
		flag = 1
	}
	cmds := []string{}
	if m.Device != "" {
		cmds = append(cmds, "flash device "+m.Device)
	}
	cmds = append(cmds,
		fmt.Sprintf("flash download=%d", flag),
		fmt.Sprintf("flash breakpoints=%d", flag),
	)
	return cmds
}

// OpenOCD is the monitor of an OpenOCD gdbserver.
type OpenOCD struct{}

func (m OpenOCD) Name() string                    { return "openocd" }
func (m OpenOCD) ResetCommand() string            { return "reset halt" }
func (m OpenOCD) XPSRName() string                { return "xPSR" }
func (m OpenOCD) ClearBreakpointsCommand() string { return "rbp all" }

func (m OpenOCD) FlashSetupCommands(enableDownload bool) []string {
	flag := "disable"
	if enableDownload {
		flag = "enable"
	}
	return []string{
		"gdb_flash_program " + flag,
		"gdb_memory_map " + flag,
	}
}
