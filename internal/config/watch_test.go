// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func startWatcher(t *testing.T, path string) chan UIConfig {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan UIConfig, 1)
	done := make(chan error, 1)

	w := NewWatcher(path, quietLogger())
	w.debounce = 20 * time.Millisecond
	go func() { done <- w.Run(ctx, updates) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})

	// Give fsnotify time to register the watch.
	time.Sleep(100 * time.Millisecond)
	return updates
}

func TestWatcher_DeliversUIChanges(t *testing.T) {
	path := writeConfig(t, "[ui]\nmarkdown = \"replace\"\n")
	updates := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("[ui]\nmarkdown = \"off\"\nword_wrap = 72\n"), 0600))

	select {
	case ui := <-updates:
		assert.Equal(t, "off", ui.Markdown)
		assert.Equal(t, 72, ui.WordWrap)
	case <-time.After(3 * time.Second):
		t.Fatal("no update delivered")
	}
}

func TestWatcher_IgnoresInvalidAndOtherFiles(t *testing.T) {
	path := writeConfig(t, "[ui]\nmarkdown = \"replace\"\n")
	updates := startWatcher(t, path)

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("[ui]\nmarkdown = \"off\"\n"), 0600))
	require.NoError(t, os.WriteFile(path, []byte("[ui]\nmarkdown = \"sparkly\"\n"), 0600))

	select {
	case ui := <-updates:
		t.Fatalf("unexpected update %+v", ui)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "absent", "config.toml"), quietLogger())
	err := w.Run(context.Background(), make(chan UIConfig, 1))
	assert.NoError(t, err)
}
