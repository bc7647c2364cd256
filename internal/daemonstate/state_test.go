// Copyright 2026 Clier Authors
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

package daemonstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaths_DerivesEveryPathUnderDotClier(t *testing.T) {
	p := NewPaths("/home/project")
	assert.Equal(t, "/home/project/.clier", p.Dir)
	assert.Equal(t, "/home/project/.clier/daemon.sock", p.SockPath)
	assert.Equal(t, "/home/project/.clier/daemon.pid", p.PidPath)
	assert.Equal(t, "/home/project/.clier/daemon-state.json", p.StatePath)
	assert.Equal(t, "/home/project/.clier/logs", p.LogDir)
}

func TestWriteReadRemovePid_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")

	require.NoError(t, WritePid(path, 4242))
	pid, err := ReadPid(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	require.NoError(t, RemovePid(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRemovePid_ToleratesAlreadyGone(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, RemovePid(filepath.Join(dir, "ghost.pid")))
}

func TestWriteReadState_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon-state.json")

	state := State{Pid: 99, RunningProcesses: []string{"web", "worker"}, SavedAt: "2026-07-31T00:00:00Z"}
	require.NoError(t, WriteState(path, state))

	got, err := ReadState(path)
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestAtomicWrite_LeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "daemon.pid")
	require.NoError(t, WritePid(path, 1))

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "daemon.pid", entries[0].Name())
}

func TestReadState_MissingFileErrors(t *testing.T) {
	_, err := ReadState("/nonexistent/daemon-state.json")
	assert.Error(t, err)
}
