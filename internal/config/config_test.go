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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 5*time.Second, cfg.Target.StateChangeTimeout)
	assert.Equal(t, 20*time.Second, cfg.Target.InterceptWaitTimeout)
	assert.Equal(t, 0, cfg.GDB.WriteRetries)
	assert.False(t, cfg.Capture.Enabled)
	assert.Equal(t, 60, cfg.Capture.Records)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ontarget.yaml")
	data := `
gdb:
  path: gdb-multiarch
  server_addr: 127.0.0.1:2331
  write_retries: 2
target:
  state_change_timeout: 10s
capture:
  enabled: true
  records: 120
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gdb-multiarch", cfg.GDB.Path)
	assert.Equal(t, "127.0.0.1:2331", cfg.GDB.ServerAddr)
	assert.Equal(t, 2, cfg.GDB.WriteRetries)
	assert.Equal(t, 10*time.Second, cfg.Target.StateChangeTimeout)
	assert.True(t, cfg.Capture.Enabled)
	assert.Equal(t, 120, cfg.Capture.Records)
	// untouched defaults survive partial files
	assert.Equal(t, 20*time.Second, cfg.Target.InterceptWaitTimeout)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Target, cfg.Target)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ONTARGET_GDB", "/opt/gdb/bin/gdb")
	t.Setenv("ONTARGET_CAPTURE", "1")
	t.Setenv("ONTARGET_STATE_TIMEOUT", "2s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/opt/gdb/bin/gdb", cfg.GDB.Path)
	assert.True(t, cfg.Capture.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Target.StateChangeTimeout)
}

func TestValidateRejectsBadTimeouts(t *testing.T) {
	cfg := Default()
	cfg.Target.StateChangeTimeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Default()
	cfg.GDB.WriteRetries = -1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
