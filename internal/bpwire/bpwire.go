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

// Package bpwire implements the framed binary protocol spoken between the
// host and the debugger-resident breakpoint commands over TCP.
//
// Each frame is a 5-byte header followed by an optional payload:
//
//	bytes 0-1  magic 0xD0 0x11
//	byte  2    message type
//	bytes 3-4  payload length, uint16 little endian
package bpwire

import (
	"encoding/binary"
	"fmt"
	"io"

	oterrors "github.com/probelab/ontarget/pkg/errors"
)

// MsgType identifies the purpose of a frame.
type MsgType byte

const (
	// MsgHit is sent by the debugger side when an intercept breakpoint fires.
	MsgHit MsgType = 0x01
	// MsgFinishCont instructs the debugger side to resume the target.
	MsgFinishCont MsgType = 0x02
	// MsgEval carries an expression to evaluate in the halted frame.
	MsgEval MsgType = 0x03
	// MsgExec carries a raw debugger command to execute in the halted frame.
	MsgExec MsgType = 0x04
	// MsgExcept reports a failure of a previously requested Eval or Exec.
	MsgExcept MsgType = 0x05
	// MsgResp carries the successful result of an Eval or Exec.
	MsgResp MsgType = 0x06
)

func (t MsgType) String() string {
	switch t {
	case MsgHit:
		return "hit"
	case MsgFinishCont:
		return "finish-cont"
	case MsgEval:
		return "eval"
	case MsgExec:
		return "exec"
	case MsgExcept:
		return "except"
	case MsgResp:
		return "resp"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

const (
	headerLen  = 5
	maxPayload = 1<<16 - 1
)

var magic = [2]byte{0xd0, 0x11}

// Msg is one decoded frame.
type Msg struct {
	Type    MsgType
	Payload []byte
}

// Text returns the payload as a string.
func (m Msg) Text() string { return string(m.Payload) }

// Write encodes a frame onto w.
func Write(w io.Writer, typ MsgType, payload []byte) error {
	if len(payload) > maxPayload {
		return oterrors.New(fmt.Sprintf("breakpoint message payload too large (%d bytes)", len(payload)))
	}

	buf := make([]byte, headerLen+len(payload))
	buf[0] = magic[0]
	buf[1] = magic[1]
	buf[2] = byte(typ)
	binary.LittleEndian.PutUint16(buf[3:5], uint16(len(payload)))
	copy(buf[headerLen:], payload)

	if _, err := w.Write(buf); err != nil {
		return oterrors.Wrap(err, "writing breakpoint message")
	}
	return nil
}

// WriteText encodes a frame with a string payload.
func WriteText(w io.Writer, typ MsgType, text string) error {
	return Write(w, typ, []byte(text))
}

// Read decodes the next frame from r. It blocks until a full frame is
// available; io.EOF is returned unwrapped so callers can detect the peer
// closing the connection between frames.
func Read(r io.Reader) (Msg, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Msg{}, io.EOF
		}
		return Msg{}, oterrors.Wrap(err, "reading breakpoint message header")
	}

	if header[0] != magic[0] || header[1] != magic[1] {
		return Msg{}, oterrors.New(fmt.Sprintf(
			"bad breakpoint message magic 0x%02x%02x", header[0], header[1]))
	}

	msg := Msg{Type: MsgType(header[2])}
	if n := binary.LittleEndian.Uint16(header[3:5]); n > 0 {
		msg.Payload = make([]byte, n)
		if _, err := io.ReadFull(r, msg.Payload); err != nil {
			return Msg{}, oterrors.Wrap(err, "reading breakpoint message payload")
		}
	}
	return msg, nil
}
