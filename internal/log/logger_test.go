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

package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	logger.Debug("hello", slog.String(TokenKey, "1000"))

	if !strings.Contains(buf.String(), `"token":"1000"`) {
		t.Errorf("expected JSON token field, got %q", buf.String())
	}
}

func TestTraceSuppressedByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatText, Output: &buf})
	Trace(logger, "raw line")

	if buf.Len() != 0 {
		t.Errorf("trace output should be suppressed at debug level, got %q", buf.String())
	}

	buf.Reset()
	logger = New(&Config{Level: "trace", Format: FormatText, Output: &buf})
	Trace(logger, "raw line")
	if !strings.Contains(buf.String(), "raw line") {
		t.Errorf("expected trace output, got %q", buf.String())
	}
}

func TestFromEnvDebug(t *testing.T) {
	t.Setenv("ONTARGET_DEBUG", "1")
	cfg := FromEnv()
	if cfg.Level != "debug" || !cfg.AddSource {
		t.Errorf("ONTARGET_DEBUG should force debug level with source, got %+v", cfg)
	}
}
