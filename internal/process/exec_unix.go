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

//go:build unix

package process

import "syscall"

// processGroupAttrs builds the SysProcAttr that makes the spawned shell the
// leader of its own process group, so Stop can reach every descendant with
// a single group-directed signal. In production (testMode=false) the child
// is additionally made a session leader (Setsid), fully detaching it from
// the daemon's controlling terminal; testMode disables that so test
// harnesses retain the ability to reap the process tree directly.
func processGroupAttrs(testMode bool) *syscall.SysProcAttr {
	if testMode {
		return &syscall.SysProcAttr{Setpgid: true}
	}
	return &syscall.SysProcAttr{Setsid: true}
}

// killGroup sends sig to every process in pgid's process group.
func killGroup(pgid int, sig syscall.Signal) error {
	if pgid <= 0 {
		return nil
	}
	return syscall.Kill(-pgid, sig)
}
