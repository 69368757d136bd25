// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config manages qlaw configuration.
//
// Configuration lives at ~/.qlaw/config.toml with QLAW_* environment
// variables layered on top at load time. The loaded Config is passed
// explicitly into every component that needs it; protocol code never
// consults ambient state.
//
// A Watcher can reload the file on change (debounced fsnotify) so a
// running session picks up edits without a restart.
package config
