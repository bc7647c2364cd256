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

// Package daemonstate reads and writes the daemon's on-disk state files
// (.clier/daemon.pid, .clier/daemon-state.json), grounded on
// tombee-conductor's internal/triggers.AtomicWriteConfig (temp file in the
// target directory + fsync + rename), swapped from YAML to JSON since the
// state file has no human-editing use case.
package daemonstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// State is the shape of .clier/daemon-state.json.
type State struct {
	Pid              int      `json:"pid"`
	RunningProcesses []string `json:"runningProcesses"`
	SavedAt          string   `json:"savedAt"`
}

// Paths resolves the on-disk locations under a project root's .clier
// directory.
type Paths struct {
	Dir       string
	SockPath  string
	PidPath   string
	StatePath string
	LogDir    string
}

// NewPaths derives every on-disk path from projectRoot.
func NewPaths(projectRoot string) Paths {
	dir := filepath.Join(projectRoot, ".clier")
	return Paths{
		Dir:       dir,
		SockPath:  filepath.Join(dir, "daemon.sock"),
		PidPath:   filepath.Join(dir, "daemon.pid"),
		StatePath: filepath.Join(dir, "daemon-state.json"),
		LogDir:    filepath.Join(dir, "logs"),
	}
}

// WritePid atomically writes the running daemon's PID.
func WritePid(path string, pid int) error {
	return atomicWrite(path, []byte(strconv.Itoa(pid)+"\n"))
}

// ReadPid reads a previously written PID file.
func ReadPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// RemovePid deletes the PID file, tolerating it already being gone.
func RemovePid(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WriteState atomically serializes state to path as JSON.
func WriteState(path string, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode daemon state: %w", err)
	}
	return atomicWrite(path, data)
}

// ReadState reads and parses a previously written state file.
func ReadState(path string) (State, error) {
	var state State
	data, err := os.ReadFile(path)
	if err != nil {
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decode daemon state: %w", err)
	}
	return state, nil
}

// atomicWrite writes data to path via a temp file in the same directory,
// fsync, then rename, so a crash mid-write never leaves a truncated file
// behind.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".clier-state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
