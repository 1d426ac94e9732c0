// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 150 * time.Millisecond

// Watcher reloads the [ui] section when the config file changes.
type Watcher struct {
	path     string
	log      logrus.FieldLogger
	debounce time.Duration
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, log logrus.FieldLogger) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		log:      log,
		debounce: DefaultDebounce,
	}
}

// Run watches the config directory until ctx is done, delivering each valid
// reload on updates, which must be buffered. Only the newest pending
// update is kept, so a slow reader never blocks the watcher. Invalid files
// are logged and skipped.
//
// If the config directory does not exist there is nothing to watch and Run
// returns nil immediately.
func (w *Watcher) Run(ctx context.Context, updates chan UIConfig) error {
	dir := filepath.Dir(w.path)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		w.log.WithField("dir", dir).Debug("config directory missing; not watching")
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory: editors often replace the file rather than
	// writing it in place, which drops a watch on the file itself.
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.log.WithField("path", w.path).Debug("watching config file")

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("config watcher error")

		case <-timer.C:
			w.reload(updates)
		}
	}
}

func (w *Watcher) reload(updates chan UIConfig) {
	ui, err := LoadUI(w.path)
	if err != nil {
		w.log.WithError(err).Warn("ignoring invalid config reload")
		return
	}
	w.log.WithFields(logrus.Fields{
		"markdown":  ui.Markdown,
		"word_wrap": ui.WordWrap,
		"style":     ui.Style,
	}).Info("config reloaded")

	// Replace any update the reader has not taken yet.
	select {
	case updates <- ui:
	default:
		select {
		case <-updates:
		default:
		}
		updates <- ui
	}
}
