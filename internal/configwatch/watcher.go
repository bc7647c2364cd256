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

// Package configwatch watches the daemon's single pipeline config file for
// changes, grounded on tombee-conductor's internal/controller/filewatcher
// (fsnotify.Watcher wrapper, stop/done channel shutdown pair), narrowed
// from a directory tree with include/exclude globs to one file.
package configwatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher notifies of changes to a single config file, debounced so a
// burst of writes (editors that truncate-then-write) produces one
// notification.
type Watcher struct {
	path    string
	debounce time.Duration
	fsw     *fsnotify.Watcher
	changes chan struct{}
	logger  *slog.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// New constructs a Watcher for path. debounce<=0 defaults to 300ms.
func New(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	// Watch the containing directory rather than the file itself: editors
	// that save via rename-over-original otherwise leave fsnotify watching
	// a deleted inode.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		fsw:      fsw,
		changes:  make(chan struct{}, 1),
		logger:   logger.With(slog.String("component", "configwatch"), slog.String("path", abs)),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.started = true
	go w.loop(ctx)
}

// Stop releases the underlying fsnotify watcher and, if Start was called,
// waits for the loop to exit.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	if w.started {
		<-w.doneCh
	}
	return w.fsw.Close()
}

// Changes delivers one notification per debounced burst of writes to the
// watched file.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerC <-chan time.Time

	notify := func() {
		select {
		case w.changes <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					<-timerC
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timer, timerC = nil, nil
			w.logger.Debug("config file changed")
			notify()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", slog.Any("error", err))
		}
	}
}
