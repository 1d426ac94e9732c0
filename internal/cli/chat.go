// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/termline/internal/cloud"
	"github.com/jeranaias/termline/internal/config"
	"github.com/jeranaias/termline/internal/logging"
	"github.com/jeranaias/termline/internal/render"
	"github.com/jeranaias/termline/internal/repl"
	"github.com/jeranaias/termline/internal/storage"
)

// loadConfig loads .env and then the config file.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	return config.Load(path)
}

// newClient builds the completion client from cfg.
func newClient(cfg *config.Config, log logrus.FieldLogger) *cloud.Client {
	return cloud.NewClient(cfg.APIKey).
		WithBaseURL(cfg.BaseURL).
		WithModel(cfg.Model).
		WithTimeout(cfg.Request.Timeout.Duration).
		WithMaxRetries(cfg.Request.MaxRetries).
		WithRateLimit(cfg.Request.RequestsPerMinute).
		WithLogger(log)
}

// renderUI converts validated config UI settings.
func renderUI(ui config.UIConfig) render.UI {
	mode, err := render.ParseMode(ui.Markdown)
	if err != nil {
		mode = render.ModeReplace
	}
	return render.UI{Markdown: mode, WordWrap: ui.WordWrap, Style: ui.Style}
}

// =============================================================================
// CHAT
// =============================================================================

// runChat starts the interactive chat. Configuration problems, including a
// missing API key, are returned before the first prompt.
func runChat(cmd *cobra.Command, configPath string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return fmt.Errorf("%w (use the environment or a .env file)", err)
	}

	// A log file that cannot be opened leaves a discarding logger.
	logger, _ := logging.Open(cfg.Log.Path, cfg.Log.Level)
	defer logger.Close()

	client := newClient(cfg, logger)
	logger.WithFields(logrus.Fields{
		"model":    client.Model(),
		"base_url": client.BaseURL(),
		"key":      client.KeyFingerprint(),
		"config":   cfg.Path(),
	}).Info("starting chat")

	renderer := render.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), render.Options{
		UI:      renderUI(cfg.UI),
		TTY:     IsStdoutTTY(),
		Profile: GetColorProfile(),
		Size:    GetTerminalSize,
	})

	var journal repl.Journal
	if cfg.History.Enabled {
		j, err := storage.Open(ctx, cfg.History.Path)
		if err != nil {
			logger.WithError(err).Warn("transcript journal unavailable")
			renderer.Notice(fmt.Sprintf("History disabled: %v", err))
		} else {
			defer j.Close()
			journal = j.NewSession(cfg.Model)
		}
	}

	// Without a home directory the input history is kept in memory only.
	historyDir, _ := config.ConfigDir()
	input := NewLineInput(historyDir)
	defer func() {
		if err := input.Close(); err != nil {
			logger.WithError(err).Warn("failed to save input history")
		}
	}()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	updates := make(chan config.UIConfig, 1)

	loop := repl.New(repl.Options{
		Client:       client,
		Input:        input,
		Renderer:     renderer,
		Journal:      journal,
		SystemPrompt: cfg.SystemPrompt,
		Interrupts:   interrupts,
		UIUpdates:    updates,
		Log:          logger,
	})

	renderer.Banner(cfg.Model)

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		// The watcher stops when the loop does.
		defer cancel()
		return loop.Run(gctx)
	})
	g.Go(func() error {
		// Live reload is optional; a failed watcher leaves the chat running.
		if err := config.NewWatcher(cfg.Path(), logger).Run(gctx, updates); err != nil {
			logger.WithError(err).Warn("config watcher stopped")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
