// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single query command handler for the qlaw CLI.
//
// Handles `qlaw ask`: sends one question to the backend and streams the
// response to stdout. Markdown is rendered only on a TTY so piped output
// stays clean.
//
// Examples:
//   qlaw ask "What is the capital of France?"
//   qlaw ask "Review this code:" --file main.go
//   qlaw ask --entity triage-workflow --mode workflow "Classify this ticket"
//   echo "question" | qlaw ask

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/Qredence/qlaw-cli/internal/backend"
	"github.com/Qredence/qlaw-cli/internal/config"
	"github.com/Qredence/qlaw-cli/internal/workflow"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MaxFileSize caps --file attachments (50KB).
	MaxFileSize = 50 * 1024

	// MaxStdinSize caps piped question input (1MB).
	MaxStdinSize = 1024 * 1024
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer is the shared glamour renderer for one-shot output.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown for terminal display, falling back to
// the raw content when the renderer is unavailable.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayResponse prints a response, rendering markdown only on a TTY to
// avoid corrupting piped output.
func displayResponse(response string) {
	if IsStdoutTTY() {
		fmt.Print(renderMarkdown(response))
	} else {
		fmt.Print(response)
	}
}

// streamToStdout writes a token without buffering delays.
func streamToStdout(token string) {
	fmt.Print(token)
}

// =============================================================================
// INPUT ASSEMBLY
// =============================================================================

// readFileForContext reads a file and formats it for inclusion in the
// question. Files larger than MaxFileSize are rejected.
func readFileForContext(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("cannot access file: %w", err)
	}

	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("file too large: %d bytes (max %d bytes)", info.Size(), MaxFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("\n--- File: %s ---\n", path))
	builder.Write(content)
	builder.WriteString("\n--- End of file ---\n")
	return builder.String(), nil
}

// readStdinQuestion reads a piped question from stdin, size-capped.
func readStdinQuestion() (string, error) {
	reader := bufio.NewReader(io.LimitReader(os.Stdin, MaxStdinSize))
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// =============================================================================
// ASK HANDLER
// =============================================================================

// RunAsk handles the `ask` command: one question, one streamed answer.
func RunAsk(cfg *config.Config, args *ArgParser) error {
	question := strings.Join(args.Positional(), " ")

	// Piped input becomes the question, or context for it.
	if !IsTTY() {
		piped, err := readStdinQuestion()
		if err != nil {
			return err
		}
		if piped != "" {
			if question == "" {
				question = piped
			} else {
				question = question + "\n\n" + piped
			}
		}
	}

	if filePath := args.Flag("file", "f"); filePath != "" {
		fileContent, err := readFileForContext(filePath)
		if err != nil {
			return err
		}
		question += fileContent
	}

	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("no question given; usage: qlaw ask \"your question\"")
	}

	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("no backend URL configured; set backend.base_url in %s or QLAW_BASE_URL", configPathHint())
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey)
	if cfg.Backend.RateLimit > 0 {
		client = client.WithRateLimit(cfg.Backend.RateLimit)
	}
	client = client.WithFrameLog(cfg.Backend.FrameLog)

	mode := workflow.ModeStandard
	if cfg.Backend.Mode == config.ModeWorkflow {
		mode = workflow.ModeWorkflow
	}

	// A one-shot has no prior turns: the flattened transcript is the
	// question itself.
	req := workflow.BuildRequest(workflow.TurnContext{
		Mode:       mode,
		EntityID:   cfg.Backend.Entity,
		Transcript: question,
		UserText:   question,
	})

	// Ctrl+C cancels via context; the stream reports "[Cancelled]".
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	useMarkdown := cfg.UI.Markdown && IsStdoutTTY()
	quiet := args.BoolFlag("quiet", "q")
	start := time.Now()

	var content strings.Builder
	var streamErr string

	client.RunStream(ctx, req, backend.Callbacks{
		OnDelta: func(text string) {
			content.WriteString(text)
			if !useMarkdown {
				streamToStdout(text)
			}
		},
		OnError: func(message string) {
			streamErr = message
		},
	})

	response := content.String()
	if useMarkdown {
		displayResponse(response)
	}
	if response != "" && !strings.HasSuffix(response, "\n") {
		fmt.Println()
	}

	if streamErr != "" {
		return fmt.Errorf("%s", streamErr)
	}

	if !quiet && IsStderrTTY() {
		tokens := (len(response) + 3) / 4
		fmt.Fprintf(os.Stderr, "%s %d tokens | %s\n",
			mutedStyle.Render("[Stats]"),
			tokens,
			time.Since(start).Round(time.Millisecond))
	}

	return nil
}
