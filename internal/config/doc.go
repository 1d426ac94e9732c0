// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for termline.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (OPENAI_API_KEY, OPENAI_MODEL, OPENAI_BASE_URL)
//   - ~/.termline/config.toml, or the file given with --config
//   - Built-in defaults
//
// A .env file in the working directory is loaded into the environment
// first; variables that are already set win over it.
//
// # Usage
//
//	if err := config.LoadDotEnv(""); err != nil {
//	    return err
//	}
//	cfg, err := config.Load(configPath)
//	if err != nil {
//	    return err
//	}
//	if err := cfg.RequireAPIKey(); err != nil {
//	    return err
//	}
//
// The [ui] section can change while the program runs; see Watcher.
package config
