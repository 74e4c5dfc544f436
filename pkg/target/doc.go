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

// Package target models the device under test behind the debugger: a
// run/halt state machine fed exclusively by asynchronous debugger
// notifications, command wrappers for execution control, expression
// evaluation, firmware load and register access, and the breakpoint hit
// dispatcher.
//
// State truth never comes from command results. A command that resumes the
// target is only complete once the corresponding *running notification has
// been observed, which is what the blocking WaitRunning/WaitHalted methods
// are for.
package target
