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

// Package breakpoint provides the breakpoint variants of the engine:
//
//   - HaltPoint halts the device on hit and releases a waiting test
//     goroutine.
//   - Barrier is a HaltPoint that resumes the device immediately after the
//     waiter has been released.
//   - CommandPoint installs a debugger-resident breakpoint that runs a
//     fixed command list on every hit without halting.
//   - InterceptPoint installs a debugger-resident breakpoint that defers
//     each hit to a host-side hook over a private TCP connection, again
//     without the device ever appearing halted to the test flow.
package breakpoint
