// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Qredence/qlaw-cli/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSession(first string) *model.Session {
	session := model.NewSession("customer-support", "workflow")
	session.AddUserMessage(first)
	asst := session.AddAssistantMessage()
	asst.AppendToken("On it.")
	asst.FinalizeStream(nil)
	return session
}

func TestSaveAndLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	session := sampleSession("where is my order?")
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx, session.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Entity != "customer-support" || loaded.Mode != "workflow" {
		t.Errorf("loaded = %+v", loaded)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("messages = %d", len(loaded.Messages))
	}
	if loaded.Messages[0].Role != model.RoleUser || loaded.Messages[0].Content != "where is my order?" {
		t.Errorf("first message = %+v", loaded.Messages[0])
	}
	if loaded.Messages[1].Content != "On it." {
		t.Errorf("assistant message = %+v", loaded.Messages[1])
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	session := sampleSession("hello")
	if err := store.Save(ctx, session); err != nil {
		t.Fatal(err)
	}
	session.AddUserMessage("more")
	if err := store.Save(ctx, session); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Messages) != 3 {
		t.Errorf("messages after resave = %d", len(loaded.Messages))
	}

	metas, err := store.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 {
		t.Errorf("sessions after resave = %d", len(metas))
	}
}

func TestSaveSkipsEmptyAndStreaming(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, model.NewSession("a", "standard")); err != nil {
		t.Fatalf("empty session save: %v", err)
	}
	metas, _ := store.List(ctx, 10)
	if len(metas) != 0 {
		t.Errorf("empty session persisted")
	}

	session := model.NewSession("a", "standard")
	session.AddUserMessage("hi")
	session.AddAssistantMessage() // still streaming, must not persist
	if err := store.Save(ctx, session); err != nil {
		t.Fatal(err)
	}
	loaded, err := store.Load(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Messages) != 1 {
		t.Errorf("streaming message persisted: %d", len(loaded.Messages))
	}
}

func TestListOrderAndPreview(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := sampleSession("first question")
	second := sampleSession("second question")
	second.UpdatedAt = second.UpdatedAt.Add(1)
	if err := store.Save(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatal(err)
	}

	metas, err := store.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Fatalf("metas = %d", len(metas))
	}
	if metas[0].Preview != "second question" {
		t.Errorf("newest first: %+v", metas[0])
	}
	if metas[0].MessageCount != 2 {
		t.Errorf("message count = %d", metas[0].MessageCount)
	}
}

func TestPruneOldSessions(t *testing.T) {
	store := openTestStore(t)
	store.MaxSessions = 3
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		session := sampleSession(fmt.Sprintf("question %d", i))
		session.UpdatedAt = session.UpdatedAt.Add(time.Duration(i) * time.Second)
		if err := store.Save(ctx, session); err != nil {
			t.Fatal(err)
		}
	}

	metas, err := store.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 3 {
		t.Errorf("sessions after prune = %d", len(metas))
	}
}

func TestSearch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSession("lost parcel in berlin")); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, sampleSession("billing dispute")); err != nil {
		t.Fatal(err)
	}

	metas, err := store.Search(ctx, "parcel", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 || metas[0].Preview != "lost parcel in berlin" {
		t.Errorf("search = %+v", metas)
	}
}

func TestListPreviewTruncatesOnRuneBoundary(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSession(strings.Repeat("日", 100))); err != nil {
		t.Fatal(err)
	}

	metas, err := store.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 {
		t.Fatalf("metas = %d", len(metas))
	}
	preview := metas[0].Preview
	if !utf8.ValidString(preview) {
		t.Errorf("preview is not valid UTF-8: %q", preview)
	}
	if n := len([]rune(preview)); n > 80 {
		t.Errorf("preview runes = %d", n)
	}
	if !strings.HasSuffix(preview, "...") {
		t.Errorf("preview = %q", preview)
	}
}

func TestSearchEscapesLikeMetacharacters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSession("migration 100% done")); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, sampleSession("billing dispute")); err != nil {
		t.Fatal(err)
	}

	metas, err := store.Search(ctx, "100%", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 || metas[0].Preview != "migration 100% done" {
		t.Errorf("search 100%% = %+v", metas)
	}

	// A bare wildcard must not match everything.
	metas, err = store.Search(ctx, "%", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 {
		t.Errorf("search %% matched %d sessions", len(metas))
	}
}

func TestLoadAndDeleteMissing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Load(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load err = %v", err)
	}
	if err := store.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete err = %v", err)
	}

	session := sampleSession("bye")
	if err := store.Save(ctx, session); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v", err)
	}
}
