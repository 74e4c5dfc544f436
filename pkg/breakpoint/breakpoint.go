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

// Point is the capability surface shared by every breakpoint variant.
type Point interface {
	// Location is the source location or symbol the breakpoint was set on.
	Location() string
	// Hits is the number of times the breakpoint has fired.
	Hits() int
	// Delete removes the breakpoint from the debugger.
	Delete() error
}

var (
	_ Point = (*HaltPoint)(nil)
	_ Point = (*Barrier)(nil)
	_ Point = (*CommandPoint)(nil)
	_ Point = (*InterceptPoint)(nil)
)
