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
	"time"

	oterrors "github.com/probelab/ontarget/pkg/errors"
	"github.com/probelab/ontarget/pkg/target"
)

// Barrier is a HaltPoint whose hook resumes the device as soon as the hit
// has been recorded: the test goroutine synchronizes with a code location
// without keeping the firmware halted.
type Barrier struct {
	*HaltPoint
}

// NewBarrier inserts a barrier at location. Only a single waiting party is
// supported.
func NewBarrier(tgt *target.Target, location string, parties int, opts ...HaltOption) (*Barrier, error) {
	if parties != 1 {
		return nil, oterrors.New("barrier supports exactly 1 waiting party")
	}

	var cfg haltConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	userHook := cfg.onReached

	rebuilt := []HaltOption{OnReached(func(h *HaltPoint) error {
		if userHook != nil {
			if err := userHook(h); err != nil {
				return err
			}
		}
		return h.tgt.Cont()
	})}
	if cfg.temporary {
		rebuilt = append(rebuilt, Temporary())
	}

	hp, err := NewHaltPoint(tgt, location, rebuilt...)
	if err != nil {
		return nil, err
	}
	return &Barrier{HaltPoint: hp}, nil
}

// ContWhenReached blocks until the barrier location has been passed.
func (b *Barrier) ContWhenReached(timeout time.Duration) error {
	return b.WaitComplete(timeout)
}
