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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oterrors "github.com/probelab/ontarget/pkg/errors"
)

func TestCorrelatorDeliverBeforeAwait(t *testing.T) {
	c := NewCorrelator()
	c.Deliver(1000, Record{Kind: KindResult, Token: 1000, Class: ClassDone})

	rec, err := c.Await(1000, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1000, rec.Token)
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelatorAwaitBeforeDeliver(t *testing.T) {
	c := NewCorrelator()

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Deliver(1001, Record{Kind: KindResult, Token: 1001, Class: ClassDone})
	}()

	rec, err := c.Await(1001, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1001, rec.Token)
}

func TestCorrelatorTimeout(t *testing.T) {
	c := NewCorrelator()

	_, err := c.Await(1002, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, oterrors.IsTimeout(err))
}

func TestCorrelatorNoCrossTalk(t *testing.T) {
	// Concurrent waiters must each get exactly the record for their token.
	c := NewCorrelator()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(token int) {
			defer wg.Done()
			rec, err := c.Await(token, 2*time.Second)
			if err != nil {
				t.Errorf("token %d: %v", token, err)
				return
			}
			if rec.Token != token {
				t.Errorf("token %d received record for token %d", token, rec.Token)
			}
			if got := rec.Payload.String("value"); got != fmt.Sprintf("%d", token) {
				t.Errorf("token %d received payload %q", token, got)
			}
		}(1000 + i)
	}

	for i := n - 1; i >= 0; i-- {
		token := 1000 + i
		c.Deliver(token, Record{
			Kind:    KindResult,
			Token:   token,
			Class:   ClassDone,
			Payload: Payload{"value": fmt.Sprintf("%d", token)},
		})
	}
	wg.Wait()
}

func TestCorrelatorLateDeliveryAfterTimeout(t *testing.T) {
	c := NewCorrelator()

	_, err := c.Await(1003, 5*time.Millisecond)
	require.Error(t, err)

	// the record arriving later is parked, not lost
	c.Deliver(1003, Record{Token: 1003, Class: ClassDone})
	rec, err := c.Await(1003, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1003, rec.Token)
}
