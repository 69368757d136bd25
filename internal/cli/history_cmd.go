// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Session history commands for the qlaw CLI.
//
// Command: history [subcommand]
// Subcommands:
//   list (default)      List saved sessions, newest first
//   search QUERY        Full-text search across titles and messages
//   show ID             Print a saved session transcript
//   delete ID           Delete a saved session
//
// Flags:
//   --limit N           Max sessions to list (default: 20)

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Qredence/qlaw-cli/internal/config"
	"github.com/Qredence/qlaw-cli/internal/history"
	"github.com/Qredence/qlaw-cli/internal/model"
	"github.com/Qredence/qlaw-cli/internal/util"
)

const defaultListLimit = 20

// RunHistory dispatches the `history` subcommands.
func RunHistory(cfg *config.Config, args *ArgParser) error {
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled; set history.enabled = true in %s", configPathHint())
	}

	path, err := cfg.HistoryPath()
	if err != nil {
		return fmt.Errorf("cannot resolve history path: %w", err)
	}
	store, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open history: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args.Subcommand() {
	case "", "list":
		return listSessions(ctx, store, args.IntFlag(defaultListLimit, "limit", "n"))

	case "search":
		query := args.RestJoined()
		if query == "" {
			return fmt.Errorf("usage: qlaw history search QUERY")
		}
		return searchSessions(ctx, store, query, args.IntFlag(defaultListLimit, "limit", "n"))

	case "show":
		if len(args.Rest()) == 0 {
			return fmt.Errorf("usage: qlaw history show SESSION_ID")
		}
		return showSession(ctx, store, args.Rest()[0])

	case "delete", "rm":
		if len(args.Rest()) == 0 {
			return fmt.Errorf("usage: qlaw history delete SESSION_ID")
		}
		return deleteSession(ctx, store, args.Rest()[0])

	default:
		return fmt.Errorf("unknown subcommand: %s (list, search, show, delete)", args.Subcommand())
	}
}

func listSessions(ctx context.Context, store *history.Store, limit int) error {
	sessions, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	printSessionTable(sessions)
	return nil
}

func searchSessions(ctx context.Context, store *history.Store, query string, limit int) error {
	sessions, err := store.Search(ctx, query, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println(infoStyle.Render(fmt.Sprintf("[No sessions matching %q]", query)))
		return nil
	}
	printSessionTable(sessions)
	return nil
}

func showSession(ctx context.Context, store *history.Store, id string) error {
	session, err := store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return fmt.Errorf("no session with id %s", id)
		}
		return err
	}

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render(session.Title))
	fmt.Printf("%s %s | %d messages | %s\n",
		infoStyle.Render("Session:"),
		session.ID,
		session.MessageCount(),
		session.UpdatedAt.Format("2006-01-02 15:04"))
	fmt.Println(infoStyle.Render(strings.Repeat("\u2500", 40)))
	fmt.Println()

	for _, msg := range session.Messages {
		label := msg.Role.DisplayName()
		if msg.AuthorName != "" {
			label = msg.AuthorName
		}
		switch msg.Role {
		case model.RoleUser:
			label = promptStyle.Render(label)
		case model.RoleAssistant:
			label = welcomeStyle.Render(label)
		default:
			label = warningStyle.Render(label)
		}
		fmt.Printf("%s:\n%s\n\n", label, msg.Content)
	}
	return nil
}

func deleteSession(ctx context.Context, store *history.Store, id string) error {
	if err := store.Delete(ctx, id); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return fmt.Errorf("no session with id %s", id)
		}
		return err
	}
	fmt.Printf("%s Deleted session %s\n", commandStyle.Render("[OK]"), id)
	return nil
}

// printSessionTable prints session metadata rows, newest first.
func printSessionTable(sessions []history.SessionMeta) {
	if len(sessions) == 0 {
		fmt.Println(infoStyle.Render("[No saved sessions]"))
		return
	}

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Saved Sessions"))
	fmt.Println(infoStyle.Render(strings.Repeat("\u2500", 25)))
	fmt.Println()

	for _, meta := range sessions {
		title := meta.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("  %s  %s\n",
			mutedStyle.Render(meta.UpdatedAt.Format("2006-01-02 15:04")),
			commandStyle.Render(title))
		fmt.Printf("      %s %s | %d messages",
			infoStyle.Render("id:"),
			meta.ID,
			meta.MessageCount)
		if meta.Entity != "" {
			fmt.Printf(" | %s", meta.Entity)
		}
		fmt.Println()
		if meta.Preview != "" {
			preview := util.TruncateWidth(meta.Preview, GetTerminalWidth()-8)
			fmt.Printf("      %s\n", mutedStyle.Render(preview))
		}
	}
	fmt.Println()
}
