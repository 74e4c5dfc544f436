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

/*
Package mi implements the concurrent protocol engine for GDB's machine
interface: the line codec, the token-based response correlator, the
notification router and the mutual-exclusion context guard.

# Architecture

A Session owns the write side of the MI channel and a single reader
goroutine on the read side. Commands are written as "<token><command>" with
a monotonically increasing token; the reader classifies every incoming line
into a Record and deposits it either into the Correlator (result records,
keyed by token) or the Router (notify records, keyed by event name and
reason). Console records carrying the auxiliary response marker are
correlated by their own token space.

Callers block in Session.Call until the result for their token arrives or a
timeout elapses; they never block the reader. Subscribers that need to do
real work on a notification hand off to their own QueueSubscriber worker so
the router stays responsive.

# Context guard

The Guard marks which logical actor may currently issue commands on the
channel. While a breakpoint intercept holds the guard, Send and Call fail
fast with an error pointing callers at the intercept's dedicated exec/eval
path.
*/
package mi
