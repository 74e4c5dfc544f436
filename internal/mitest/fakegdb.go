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

// Package mitest provides an in-process scripted debugger for protocol
// tests: it speaks just enough of the MI wire format to exercise the
// session, target and breakpoint layers without a real gdb.
package mitest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Handler produces the raw MI reply lines for one received command. The
// %TOKEN% placeholder in each line is replaced with the command's token.
type Handler func(token int, cmd string) []string

// FakeGdb is a scripted MI endpoint. Tests register handlers per command
// prefix; unmatched commands are acknowledged with ^done. Asynchronous
// notifications are injected with Emit.
type FakeGdb struct {
	cmdReader  *io.PipeReader
	cmdWriter  *io.PipeWriter
	respReader *io.PipeReader
	respWriter *io.PipeWriter

	mu       sync.Mutex
	handlers map[string]Handler
	commands []string

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a fake debugger. SessionReader/SessionWriter are the ends to
// hand to mi.NewSession.
func New() *FakeGdb {
	cmdR, cmdW := io.Pipe()
	respR, respW := io.Pipe()

	f := &FakeGdb{
		cmdReader:  cmdR,
		cmdWriter:  cmdW,
		respReader: respR,
		respWriter: respW,
		handlers:   make(map[string]Handler),
		done:       make(chan struct{}),
	}
	go f.serve()
	return f
}

// SessionReader is the read side for the session under test.
func (f *FakeGdb) SessionReader() io.Reader { return f.respReader }

// SessionWriter is the write side for the session under test.
func (f *FakeGdb) SessionWriter() io.Writer { return f.cmdWriter }

// Handle registers a handler for commands starting with prefix. The longest
// matching prefix wins.
func (f *FakeGdb) Handle(prefix string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[prefix] = h
}

// Reply registers a fixed reply for commands starting with prefix.
func (f *FakeGdb) Reply(prefix string, lines ...string) {
	f.Handle(prefix, func(token int, cmd string) []string { return lines })
}

// Emit injects raw lines into the session's read side, e.g. async
// notifications.
func (f *FakeGdb) Emit(lines ...string) {
	for _, line := range lines {
		fmt.Fprintf(f.respWriter, "%s\n", line)
	}
}

// Commands returns every command received so far, tokens stripped.
func (f *FakeGdb) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	copy(out, f.commands)
	return out
}

// Received reports whether any received command starts with prefix.
func (f *FakeGdb) Received(prefix string) bool {
	for _, cmd := range f.Commands() {
		if strings.HasPrefix(cmd, prefix) {
			return true
		}
	}
	return false
}

// Close tears down both pipes.
func (f *FakeGdb) Close() {
	f.closeOnce.Do(func() {
		f.cmdWriter.Close()
		f.respWriter.Close()
		<-f.done
	})
}

func (f *FakeGdb) serve() {
	defer close(f.done)

	scanner := bufio.NewScanner(f.cmdReader)
	for scanner.Scan() {
		line := scanner.Text()
		token, cmd := splitToken(line)

		f.mu.Lock()
		f.commands = append(f.commands, cmd)
		handler := f.lookupLocked(cmd)
		f.mu.Unlock()

		var lines []string
		if handler != nil {
			lines = handler(token, cmd)
		} else {
			lines = []string{"%TOKEN%^done"}
		}
		for _, out := range lines {
			out = strings.ReplaceAll(out, "%TOKEN%", fmt.Sprintf("%d", token))
			fmt.Fprintf(f.respWriter, "%s\n", out)
		}
		fmt.Fprintln(f.respWriter, "(gdb) ")
	}
}

func (f *FakeGdb) lookupLocked(cmd string) Handler {
	var best string
	var h Handler
	for prefix, handler := range f.handlers {
		if strings.HasPrefix(cmd, prefix) && len(prefix) > len(best) {
			best = prefix
			h = handler
		}
	}
	return h
}

func splitToken(line string) (int, string) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	token := -1
	if i > 0 {
		token = 0
		for _, c := range line[:i] {
			token = token*10 + int(c-'0')
		}
	}
	return token, line[i:]
}
