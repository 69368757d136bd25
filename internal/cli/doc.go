// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the non-TUI command surface of qlaw: the plain
// readline chat REPL (`qlaw chat --plain`), the one-shot `ask` command,
// and the `history` management commands. The full-screen TUI lives in
// internal/ui; this package is what runs when the terminal is dumb, the
// output is piped, or the user asked for plain mode.
package cli
