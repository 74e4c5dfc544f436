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
)

func TestParseResultRecord(t *testing.T) {
	rec := ParseLine(`1000^done,value="42"`)

	assert.Equal(t, KindResult, rec.Kind)
	assert.Equal(t, 1000, rec.Token)
	assert.Equal(t, ClassDone, rec.Class)
	assert.Equal(t, "42", rec.Payload.String("value"))
}

func TestParseResultWithoutToken(t *testing.T) {
	rec := ParseLine(`^error,msg="No symbol table is loaded."`)

	assert.Equal(t, KindResult, rec.Kind)
	assert.Equal(t, -1, rec.Token)
	assert.Equal(t, ClassError, rec.Class)
	assert.Equal(t, "No symbol table is loaded.", rec.Payload.String("msg"))
}

func TestParseBreakInsertReply(t *testing.T) {
	line := `1001^done,bkpt={number="2",type="breakpoint",disp="keep",enabled="y",addr="0x000001a4",func="main",file="main.c",line="17",times="0"}`
	rec := ParseLine(line)

	require.Equal(t, KindResult, rec.Kind)
	bkpt := rec.Payload.Sub("bkpt")
	require.NotNil(t, bkpt)
	assert.Equal(t, "2", bkpt.String("number"))
	assert.Equal(t, "0x000001a4", bkpt.String("addr"))
	assert.Equal(t, "main", bkpt.String("func"))
}

func TestParseStoppedNotify(t *testing.T) {
	line := `*stopped,reason="breakpoint-hit",disp="keep",bkptno="1",frame={addr="0x000001a4",func="main"},thread-id="1"`
	rec := ParseLine(line)

	assert.Equal(t, KindNotify, rec.Kind)
	assert.Equal(t, "stopped", rec.Class)
	assert.Equal(t, "breakpoint-hit", rec.Reason())
	assert.Equal(t, "1", rec.Payload.String("bkptno"))

	frame := rec.Payload.Sub("frame")
	require.NotNil(t, frame)
	assert.Equal(t, "main", frame.String("func"))
}

func TestParseReasonListNormalization(t *testing.T) {
	// One probe adapter reports the stop reason as a list instead of the
	// scalar "breakpoint-hit".
	line := `*stopped,reason=["signal-received","breakpoint-hit"],bkptno="3"`
	rec := ParseLine(line)

	assert.Equal(t, "breakpoint-hit", rec.Reason())
	// normalization writes the scalar back into the payload
	assert.Equal(t, "breakpoint-hit", rec.Payload.String("reason"))
}

func TestParseReasonListWithoutBreakpointHit(t *testing.T) {
	line := `*stopped,reason=["signal-received","watchpoint-scope"]`
	rec := ParseLine(line)

	assert.Equal(t, "signal-received", rec.Reason())
}

func TestParseNotifyAsyncRecord(t *testing.T) {
	rec := ParseLine(`=breakpoint-modified,bkpt={number="1",times="1"}`)

	assert.Equal(t, KindNotify, rec.Kind)
	assert.Equal(t, "breakpoint-modified", rec.Class)
}

func TestParseRunningNotify(t *testing.T) {
	rec := ParseLine(`*running,thread-id="all"`)

	assert.Equal(t, KindNotify, rec.Kind)
	assert.Equal(t, "running", rec.Class)
	assert.Equal(t, "", rec.Reason())
}

func TestParseStreamRecords(t *testing.T) {
	tests := []struct {
		line string
		kind Kind
		text string
	}{
		{`~"hello\n"`, KindConsole, "hello\n"},
		{`~"OT_RESP, 8000, ontarget-is-running, NO, OT_RESP_END\n"`, KindConsole, "OT_RESP, 8000, ontarget-is-running, NO, OT_RESP_END\n"},
		{`&"warning: bad thing\n"`, KindLog, "warning: bad thing\n"},
		{`@"target says hi"`, KindTarget, "target says hi"},
	}

	for _, tt := range tests {
		rec := ParseLine(tt.line)
		assert.Equal(t, tt.kind, rec.Kind, tt.line)
		assert.Equal(t, tt.text, rec.Text, tt.line)
	}
}

func TestParsePromptAndJunk(t *testing.T) {
	for _, line := range []string{"(gdb) ", "garbage without prefix", ""} {
		rec := ParseLine(line)
		assert.Equal(t, KindOutput, rec.Kind, line)
	}
}

func TestParseEscapedQuotes(t *testing.T) {
	rec := ParseLine(`1002^error,msg="Undefined command: \"bogus\"."`)
	assert.Equal(t, `Undefined command: "bogus".`, rec.Payload.String("msg"))
}

func TestParseNestedList(t *testing.T) {
	line := `1003^done,stack=[frame={level="0",func="isr"},frame={level="1",func="main"}]`
	rec := ParseLine(line)

	stack, ok := rec.Payload["stack"].([]any)
	require.True(t, ok)
	require.Len(t, stack, 2)

	first, ok := stack[0].(Payload)
	require.True(t, ok)
	assert.Equal(t, "isr", first.Sub("frame").String("func"))
}

func TestParseEmptyTupleAndList(t *testing.T) {
	rec := ParseLine(`1004^done,groups=[],frame={}`)

	groups, ok := rec.Payload["groups"].([]any)
	require.True(t, ok)
	assert.Empty(t, groups)

	frame, ok := rec.Payload["frame"].(Payload)
	require.True(t, ok)
	assert.Empty(t, frame)
}

func TestParseMalformedPayloadDegrades(t *testing.T) {
	// Reader must survive malformed payloads; the class is preserved and
	// the payload is empty.
	rec := ParseLine(`1005^done,broken={unterminated`)

	assert.Equal(t, KindResult, rec.Kind)
	assert.Equal(t, ClassDone, rec.Class)
	assert.Empty(t, rec.Payload)
}
