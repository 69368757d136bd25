// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history persists finished chat sessions to a local SQLite
// database.
//
// The default location is ~/.qlaw/history.db. Sessions are stored with
// their full message list; listing queries return lightweight metadata so
// the picker never loads transcripts it does not show. Old sessions are
// pruned past a configurable cap.
package history
