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

// Package logbuffer implements a per-process ring of recent log entries
// plus an optional size-capped, rotating on-disk sink, grounded on
// tombee-conductor's internal/controller/runner.LogAggregator (a
// mutex-guarded, name-keyed registry) for the ring half, and the daemon's
// atomic-write discipline (internal/triggers/writer.go) for file safety.
package logbuffer

import (
	"regexp"
	"sync"
	"time"

	"github.com/clierhq/clier/internal/metrics"
)

// Stream identifies the origin of a log entry.
type Stream string

const (
	StreamStdout  Stream = "stdout"
	StreamStderr  Stream = "stderr"
	StreamCommand Stream = "command"
)

// Entry is one recorded line.
type Entry struct {
	Timestamp time.Time
	Stream    Stream
	Data      string
}

const defaultCapacity = 1000

var unsafeNameChar = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeName replaces any character outside [A-Za-z0-9._-] with '_', the
// rule for safe on-disk file names.
func SanitizeName(name string) string {
	return unsafeNameChar.ReplaceAllString(name, "_")
}

type ring struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &ring{capacity: capacity}
}

func (r *ring) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
}

func (r *ring) all() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry(nil), r.entries...)
}

func (r *ring) lastN(n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n >= len(r.entries) {
		return append([]Entry(nil), r.entries...)
	}
	return append([]Entry(nil), r.entries[len(r.entries)-n:]...)
}

func (r *ring) since(ts time.Time) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Timestamp.After(ts) {
			out = append(out, e)
		}
	}
	return out
}

func (r *ring) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// Options configures a Buffer.
type Options struct {
	Capacity int

	// Persist enables the rotating on-disk sink.
	Persist     bool
	LogDir      string
	MaxFileSize int64
	MaxFiles    int
}

// Buffer is the daemon-wide log buffer: one ring per process name, plus an
// optional shared persistence sink.
type Buffer struct {
	opts Options

	mu    sync.RWMutex
	rings map[string]*ring
	sinks map[string]*fileSink

	onWriteError func(process string, err error)
}

// New constructs a Buffer. onWriteError, if non-nil, is invoked whenever a
// persistence write fails; the ring is always updated regardless (log
// write errors never block the in-memory record).
func New(opts Options, onWriteError func(process string, err error)) *Buffer {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	return &Buffer{
		opts:         opts,
		rings:        make(map[string]*ring),
		sinks:        make(map[string]*fileSink),
		onWriteError: onWriteError,
	}
}

func (b *Buffer) ringFor(name string) *ring {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rings[name]
	if !ok {
		r = newRing(b.opts.Capacity)
		b.rings[name] = r
	}
	return r
}

// Add appends one entry to name's ring and, if persistence is enabled,
// its file sink.
func (b *Buffer) Add(name string, stream Stream, data string) {
	e := Entry{Timestamp: time.Now(), Stream: stream, Data: data}
	b.ringFor(name).add(e)

	if !b.opts.Persist {
		return
	}
	sink := b.sinkFor(name)
	if err := sink.write(e); err != nil {
		metrics.RecordLogWriteError(name)
		if b.onWriteError != nil {
			b.onWriteError(name, err)
		}
	}
}

func (b *Buffer) sinkFor(name string) *fileSink {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sinks[name]
	if !ok {
		s = newFileSink(b.opts.LogDir, name, b.opts.MaxFileSize, b.opts.MaxFiles)
		b.sinks[name] = s
	}
	return s
}

// GetAll returns every entry currently retained for name.
func (b *Buffer) GetAll(name string) []Entry {
	return b.ringFor(name).all()
}

// GetLastN returns the most recent n entries for name.
func (b *Buffer) GetLastN(name string, n int) []Entry {
	return b.ringFor(name).lastN(n)
}

// GetSince returns every entry for name recorded strictly after ts.
func (b *Buffer) GetSince(name string, ts time.Time) []Entry {
	return b.ringFor(name).since(ts)
}

// Clear empties name's ring. It does not remove on-disk files.
func (b *Buffer) Clear(name string) {
	b.ringFor(name).clear()
}

// ListNames returns every process name with a ring, regardless of whether
// it currently holds entries.
func (b *Buffer) ListNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.rings))
	for n := range b.rings {
		names = append(names, n)
	}
	return names
}

// DeleteFiles removes name's on-disk log files, closing its sink first.
func (b *Buffer) DeleteFiles(name string) error {
	b.mu.Lock()
	sink, ok := b.sinks[name]
	delete(b.sinks, name)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return sink.remove()
}

// Flush closes every open file sink.
func (b *Buffer) Flush() {
	b.mu.RLock()
	sinks := make([]*fileSink, 0, len(b.sinks))
	for _, s := range b.sinks {
		sinks = append(sinks, s)
	}
	b.mu.RUnlock()
	for _, s := range sinks {
		s.close()
	}
}
