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

package mi_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/ontarget/internal/mi"
	"github.com/probelab/ontarget/internal/mitest"
	oterrors "github.com/probelab/ontarget/pkg/errors"
)

const testTimeout = 5 * time.Second

func newTestSession(t *testing.T) (*mi.Session, *mitest.FakeGdb) {
	t.Helper()
	fake := mitest.New()
	t.Cleanup(fake.Close)
	sess := mi.NewSession(fake.SessionReader(), fake.SessionWriter())
	return sess, fake
}

func TestSessionCallRoundTrip(t *testing.T) {
	sess, fake := newTestSession(t)
	fake.Reply("-gdb-version", `%TOKEN%^done,version="12.1"`)

	payload, err := sess.Call("-gdb-version", testTimeout)
	require.NoError(t, err)
	assert.Equal(t, "12.1", payload.String("version"))
}

func TestSessionCallRunningClassIsSuccess(t *testing.T) {
	sess, fake := newTestSession(t)
	fake.Reply("-exec-continue", "%TOKEN%^running")

	_, err := sess.Call("-exec-continue", testTimeout)
	assert.NoError(t, err)
}

func TestSessionCallErrorResult(t *testing.T) {
	sess, fake := newTestSession(t)
	fake.Reply("-break-insert", `%TOKEN%^error,msg="Function \"nope\" not defined."`)

	_, err := sess.Call("-break-insert nope", testTimeout)
	require.Error(t, err)

	var pe *oterrors.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, "not defined")
	assert.Equal(t, "-break-insert nope", pe.Command)
}

func TestSessionCallBenignErrorsDowngraded(t *testing.T) {
	benign := []string{
		`The program stopped while in a function called from GDB.`,
		`Unknown remote qXfer reply: OK`,
	}
	for _, msg := range benign {
		sess, fake := newTestSession(t)
		fake.Reply("-data-evaluate-expression", fmt.Sprintf(`%%TOKEN%%^error,msg=%q`, msg))

		payload, err := sess.Call("-data-evaluate-expression foo()", testTimeout)
		assert.NoError(t, err, "message %q should be downgraded", msg)
		assert.Nil(t, payload)
	}
}

func TestSessionCallWhileRunningError(t *testing.T) {
	sess, fake := newTestSession(t)
	fake.Reply("-data-evaluate-expression",
		`%TOKEN%^error,msg="Cannot execute this command while the target is running."`)

	_, err := sess.Call("-data-evaluate-expression x", testTimeout)
	require.Error(t, err)

	var pe *oterrors.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, "must be halted")
}

func TestSessionCallRetriesInvalidHexReply(t *testing.T) {
	fake := mitest.New()
	t.Cleanup(fake.Close)
	sess := mi.NewSession(fake.SessionReader(), fake.SessionWriter(), mi.WithRetries(1))

	var mu sync.Mutex
	calls := 0
	fake.Handle("-data-read-memory-bytes", func(token int, cmd string) []string {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return []string{`%TOKEN%^error,msg="Reply contains invalid hex digit 59"`}
		}
		return []string{`%TOKEN%^done,memory=[{begin="0x0",end="0x4",contents="deadbeef"}]`}
	})

	payload, err := sess.Call("-data-read-memory-bytes 0x0 4", testTimeout)
	require.NoError(t, err)
	assert.NotNil(t, payload["memory"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestSessionNoRetryByDefault(t *testing.T) {
	sess, fake := newTestSession(t)
	fake.Reply("-data-read-memory-bytes",
		`%TOKEN%^error,msg="Reply contains invalid hex digit 59"`)

	_, err := sess.Call("-data-read-memory-bytes 0x0 4", testTimeout)
	require.Error(t, err)
	assert.True(t, oterrors.IsProtocol(err))
}

func TestSessionCallTimeout(t *testing.T) {
	fake := mitest.New()
	t.Cleanup(fake.Close)
	sess := mi.NewSession(fake.SessionReader(), fake.SessionWriter())
	fake.Handle("-exec-continue", func(token int, cmd string) []string {
		return nil // never answer
	})

	_, err := sess.Call("-exec-continue", 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, oterrors.IsTimeout(err))
}

func TestSessionSendBlockedInInterceptContext(t *testing.T) {
	sess, _ := newTestSession(t)
	holder := struct{}{}
	require.NoError(t, sess.Guard().Acquire(&holder, mi.ContextIntercept))

	_, err := sess.Send("-exec-continue")
	require.Error(t, err)
	assert.True(t, oterrors.IsContextViolation(err))
	assert.Contains(t, err.Error(), "intercept")

	require.NoError(t, sess.Guard().Release(&holder))
	_, err = sess.Send("-exec-continue")
	assert.NoError(t, err)
}

func TestSessionCallAux(t *testing.T) {
	sess, fake := newTestSession(t)
	fake.Handle("-interpreter-exec console", func(token int, cmd string) []string {
		// the aux id is the last argument inside the quoted command
		inner := strings.TrimSuffix(strings.TrimPrefix(cmd, `-interpreter-exec console "`), `"`)
		fields := strings.Fields(inner)
		id := fields[len(fields)-1]
		return []string{
			fmt.Sprintf(`~"%s, %s, running\n"`, mi.AuxResponseMarker, id),
			"%TOKEN%^done",
		}
	})

	text, err := sess.CallAux("ontarget-is-running", testTimeout)
	require.NoError(t, err)
	assert.Contains(t, text, "running")
}

func TestSessionConcurrentCallersNoCrossTalk(t *testing.T) {
	sess, fake := newTestSession(t)
	fake.Handle("-data-evaluate-expression", func(token int, cmd string) []string {
		expr := strings.TrimPrefix(cmd, "-data-evaluate-expression ")
		return []string{fmt.Sprintf(`%%TOKEN%%^done,value=%q`, expr)}
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			expr := fmt.Sprintf("var_%d", i)
			payload, err := sess.Call("-data-evaluate-expression "+expr, testTimeout)
			assert.NoError(t, err)
			assert.Equal(t, expr, payload.String("value"))
		}(i)
	}
	wg.Wait()
}

func TestSessionNotifyRecordsReachRouter(t *testing.T) {
	sess, fake := newTestSession(t)

	got := make(chan mi.Record, 1)
	sub := subscriberFunc(func(rec mi.Record) { got <- rec })
	sess.Router().Subscribe(&sub, "stopped", "breakpoint-hit", false)

	fake.Emit(`*stopped,reason="breakpoint-hit",bkptno="1",frame={func="main"}`)

	select {
	case rec := <-got:
		assert.Equal(t, "breakpoint-hit", rec.Reason())
	case <-time.After(testTimeout):
		t.Fatal("notification never dispatched")
	}
}

func TestSessionDoneOnChannelClose(t *testing.T) {
	fake := mitest.New()
	sess := mi.NewSession(fake.SessionReader(), fake.SessionWriter())

	fake.Close()

	select {
	case <-sess.Done():
	case <-time.After(testTimeout):
		t.Fatal("session did not observe channel close")
	}
}

type subscriberFunc func(mi.Record)

func (f *subscriberFunc) Notify(rec mi.Record) { (*f)(rec) }
