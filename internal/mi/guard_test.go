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

package mi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oterrors "github.com/probelab/ontarget/pkg/errors"
)

func TestGuardAcquireRelease(t *testing.T) {
	g := NewGuard()
	holder := "breakpoint-1"

	assert.Equal(t, ContextNormal, g.Mode())
	require.NoError(t, g.Acquire(holder, ContextIntercept))
	assert.Equal(t, ContextIntercept, g.Mode())
	require.NoError(t, g.Release(holder))
	assert.Equal(t, ContextNormal, g.Mode())
}

func TestGuardSecondAcquireFails(t *testing.T) {
	g := NewGuard()
	require.NoError(t, g.Acquire("holderA", ContextIntercept))

	err := g.Acquire("holderA", ContextIntercept)
	require.Error(t, err)
	assert.True(t, oterrors.IsContextViolation(err))

	err = g.Acquire("holderB", ContextIntercept)
	require.Error(t, err)
	assert.True(t, oterrors.IsContextViolation(err))
}

func TestGuardReleaseByNonOwnerFails(t *testing.T) {
	g := NewGuard()
	require.NoError(t, g.Acquire("owner", ContextIntercept))

	err := g.Release("intruder")
	require.Error(t, err)
	assert.True(t, oterrors.IsContextViolation(err))

	// still held by the owner
	assert.Equal(t, ContextIntercept, g.Mode())
	require.NoError(t, g.Release("owner"))
}

func TestGuardReacquireAfterRelease(t *testing.T) {
	g := NewGuard()
	require.NoError(t, g.Acquire("first", ContextIntercept))
	require.NoError(t, g.Release("first"))
	require.NoError(t, g.Acquire("second", ContextIntercept))
	require.NoError(t, g.Release("second"))
}

func TestGuardCannotAcquireNormal(t *testing.T) {
	g := NewGuard()
	err := g.Acquire("holder", ContextNormal)
	require.Error(t, err)
	assert.True(t, oterrors.IsContextViolation(err))
}
