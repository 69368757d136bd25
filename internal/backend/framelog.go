// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Qredence/qlaw-cli/internal/wire"
)

// =============================================================================
// FRAME LOG
// =============================================================================

// frameLogger appends raw decoded SSE frames to a local file. Opt-in
// diagnostics for debugging backend protocol issues; never enabled by
// default.
type frameLogger struct {
	mu   sync.Mutex
	path string
	file *os.File
	err  bool
}

func newFrameLogger(path string) *frameLogger {
	return &frameLogger{path: path}
}

// record writes one frame with a timestamp. The file is opened lazily and
// a failed open disables logging for the client's lifetime rather than
// failing the stream.
func (fl *frameLogger) record(ev wire.WireEvent) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.err {
		return
	}
	if fl.file == nil {
		f, err := os.OpenFile(fl.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			fl.err = true
			return
		}
		fl.file = f
	}

	ts := time.Now().Format(time.RFC3339Nano)
	if ev.Event != "" {
		fmt.Fprintf(fl.file, "%s event: %s\n", ts, ev.Event)
	}
	fmt.Fprintf(fl.file, "%s data: %s\n", ts, ev.Data)
}

// Close releases the log file, if one was opened.
func (fl *frameLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.file == nil {
		return nil
	}
	err := fl.file.Close()
	fl.file = nil
	return err
}
