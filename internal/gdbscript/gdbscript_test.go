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

package gdbscript

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterialize(t *testing.T) {
	path, err := Materialize(t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	for _, cmd := range []string{CmdBpCmd, CmdBpTcp, CmdBpDelete, CmdIsRunning} {
		assert.Contains(t, content, "'"+cmd+"'")
	}
	assert.Contains(t, content, "OT_RESP")
}

func TestMaterializeTempDir(t *testing.T) {
	path, err := Materialize("")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(path) })

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestSourceCommand(t *testing.T) {
	cmd := SourceCommand("/tmp/x/ontarget_resident.py")
	assert.True(t, strings.HasPrefix(cmd, "source "))
	assert.Contains(t, cmd, "ontarget_resident.py")
}
