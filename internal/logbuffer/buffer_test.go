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

package logbuffer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName_ReplacesUnsafeChars(t *testing.T) {
	assert.Equal(t, "web_api_v2", SanitizeName("web/api v2"))
	assert.Equal(t, "already-ok.1_2", SanitizeName("already-ok.1_2"))
}

func TestBuffer_RingEvictsOldestPastCapacity(t *testing.T) {
	b := New(Options{Capacity: 3}, nil)
	for i := 0; i < 5; i++ {
		b.Add("web", StreamStdout, string(rune('a'+i)))
	}
	entries := b.GetAll("web")
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Data)
	assert.Equal(t, "e", entries[2].Data)
}

func TestBuffer_GetLastN(t *testing.T) {
	b := New(Options{Capacity: 10}, nil)
	for i := 0; i < 5; i++ {
		b.Add("web", StreamStdout, string(rune('a'+i)))
	}
	last2 := b.GetLastN("web", 2)
	require.Len(t, last2, 2)
	assert.Equal(t, "d", last2[0].Data)
	assert.Equal(t, "e", last2[1].Data)
}

func TestBuffer_ClearEmptiesRingButKeepsName(t *testing.T) {
	b := New(Options{Capacity: 10}, nil)
	b.Add("web", StreamStdout, "hi")
	b.Clear("web")
	assert.Empty(t, b.GetAll("web"))
	assert.Contains(t, b.ListNames(), "web")
}

func TestBuffer_PersistWritesToRotatingFile(t *testing.T) {
	dir := t.TempDir()
	b := New(Options{Capacity: 10, Persist: true, LogDir: dir, MaxFileSize: 1024, MaxFiles: 2}, nil)
	b.Add("web", StreamStdout, "hello world")
	b.Flush()

	data, err := os.ReadFile(filepath.Join(dir, "web.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[OUT] hello world")
}

func TestBuffer_PersistRotatesPastMaxFileSize(t *testing.T) {
	dir := t.TempDir()
	b := New(Options{Capacity: 100, Persist: true, LogDir: dir, MaxFileSize: 64, MaxFiles: 2}, nil)
	for i := 0; i < 20; i++ {
		b.Add("web", StreamStdout, "this line is long enough to force rotation soon")
	}
	b.Flush()

	_, err := os.Stat(filepath.Join(dir, "web.log.1"))
	assert.NoError(t, err)
}

func TestBuffer_DeleteFilesRemovesOnDisk(t *testing.T) {
	dir := t.TempDir()
	b := New(Options{Capacity: 10, Persist: true, LogDir: dir}, nil)
	b.Add("web", StreamStdout, "hi")
	b.Flush()

	require.NoError(t, b.DeleteFiles("web"))
	_, err := os.Stat(filepath.Join(dir, "web.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuffer_GetSinceFiltersByTimestamp(t *testing.T) {
	b := New(Options{Capacity: 10}, nil)
	b.Add("web", StreamStdout, "first")
	cutoff := b.GetAll("web")[0].Timestamp
	b.Add("web", StreamStdout, "second")

	since := b.GetSince("web", cutoff)
	require.Len(t, since, 1)
	assert.Equal(t, "second", since[0].Data)
}
