package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/2029ijones-sudo/os-lab/internal/core"
)

func newTestWorkspace(t *testing.T, m *Memory, name, owner string) *core.Workspace {
	t.Helper()
	ws, err := m.Create(context.Background(), CreateParams{
		OwnerID: owner,
		Name:    name,
		Files:   core.FileTree{"index.html": "<html></html>", "main.js": "require('electron')"},
	})
	if err != nil {
		t.Fatalf("create workspace: %s", err)
	}
	return ws
}

func TestMemoryCreate_SlugFromName(t *testing.T) {
	m := NewMemory()
	ws := newTestWorkspace(t, m, "My Cool App", "alice")
	if ws.Slug != "my-cool-app" {
		t.Errorf("expected slug my-cool-app, got %s", ws.Slug)
	}
	if ws.Stars != 0 || ws.Forks != 0 {
		t.Errorf("new workspace should have zero counters")
	}
}

func TestMemoryCreate_SlugCollisionGetsSuffix(t *testing.T) {
	m := NewMemory()
	first := newTestWorkspace(t, m, "App", "alice")
	second := newTestWorkspace(t, m, "App", "bob")
	if first.Slug == second.Slug {
		t.Fatalf("expected distinct slugs, both got %s", first.Slug)
	}
	if !strings.HasPrefix(second.Slug, "app-") {
		t.Errorf("expected suffixed slug, got %s", second.Slug)
	}
}

func TestMemoryGet_NotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "nope")
	appErr, ok := core.AsAppError(err)
	if !ok || appErr.Code != core.ErrNotFound {
		t.Fatalf("expected typed not-found error, got %v", err)
	}
}

func TestMemoryFork_UnpublishedCopiesLiveTree(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	src := newTestWorkspace(t, m, "App", "alice")

	fork, err := m.Fork(ctx, src.ID, "bob")
	if err != nil {
		t.Fatalf("fork: %s", err)
	}
	if fork.Files["index.html"] != "<html></html>" {
		t.Errorf("fork should copy the live tree when never published")
	}
	if fork.OwnerID != "bob" {
		t.Errorf("fork owner should be the forker, got %s", fork.OwnerID)
	}
	if fork.ParentID == nil || *fork.ParentID != src.ID {
		t.Errorf("fork should record its parent")
	}
	if fork.Stars != 0 || fork.Forks != 0 || fork.IsPublished {
		t.Errorf("fork should start with zeroed counters and unpublished")
	}

	srcAfter, _ := m.Get(ctx, src.ID)
	if srcAfter.Forks != 1 {
		t.Errorf("source fork counter should be 1, got %d", srcAfter.Forks)
	}
}

func TestMemoryFork_PublishedCopiesSnapshotNotLiveTree(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	src := newTestWorkspace(t, m, "App", "alice")

	now := time.Now().UTC()
	_, err := m.Publish(ctx, src.ID, PublishParams{
		Files:       core.FileTree{"index.html": "published"},
		PublishedAt: now,
		ExpiresAt:   now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("publish: %s", err)
	}

	// Diverge the live tree after publishing.
	_, err = m.Update(ctx, src.ID, UpdatePatch{Files: core.FileTree{"index.html": "draft"}})
	if err != nil {
		t.Fatalf("update: %s", err)
	}

	fork, err := m.Fork(ctx, src.ID, "bob")
	if err != nil {
		t.Fatalf("fork: %s", err)
	}
	if fork.Files["index.html"] != "published" {
		t.Errorf("fork should copy the published snapshot, got %q", fork.Files["index.html"])
	}
}

func TestMemoryPublish_SetsFlagsAndSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ws := newTestWorkspace(t, m, "App", "alice")

	now := time.Now().UTC()
	expires := now.Add(7 * 24 * time.Hour)
	snap, err := m.Publish(ctx, ws.ID, PublishParams{
		Files:       core.FileTree{"index.html": "v1"},
		PublishedAt: now,
		ExpiresAt:   expires,
	})
	if err != nil {
		t.Fatalf("publish: %s", err)
	}
	if !snap.PreviewExpiresAt.Equal(expires) {
		t.Errorf("snapshot expiry mismatch")
	}

	after, _ := m.Get(ctx, ws.ID)
	if !after.IsPublished || !after.PreviewEnabled {
		t.Errorf("publish should flip both publish flags")
	}
	if after.Files["index.html"] != "v1" {
		t.Errorf("publish should persist the tree to the workspace")
	}
}

func TestMemoryUnpublish_KeepsSnapshotForForks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ws := newTestWorkspace(t, m, "App", "alice")

	now := time.Now().UTC()
	if _, err := m.Publish(ctx, ws.ID, PublishParams{
		Files:       core.FileTree{"index.html": "v1"},
		PublishedAt: now,
		ExpiresAt:   now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("publish: %s", err)
	}
	if err := m.Unpublish(ctx, ws.ID); err != nil {
		t.Fatalf("unpublish: %s", err)
	}

	after, _ := m.Get(ctx, ws.ID)
	if after.PreviewEnabled {
		t.Errorf("unpublish should disable the preview")
	}

	fork, err := m.Fork(ctx, ws.ID, "bob")
	if err != nil {
		t.Fatalf("fork: %s", err)
	}
	if fork.Files["index.html"] != "v1" {
		t.Errorf("fork after unpublish should still copy the snapshot")
	}
}

func TestMemoryListPublished_Sorting(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	mkPublished := func(name string, stars int) *core.Workspace {
		ws := newTestWorkspace(t, m, name, "alice")
		now := time.Now().UTC()
		if _, err := m.Publish(ctx, ws.ID, PublishParams{
			Files: ws.Files, PublishedAt: now, ExpiresAt: now.Add(time.Hour),
		}); err != nil {
			t.Fatalf("publish: %s", err)
		}
		for i := 0; i < stars; i++ {
			if _, err := m.AddStar(ctx, ws.ID); err != nil {
				t.Fatalf("star: %s", err)
			}
		}
		return ws
	}

	mkPublished("one", 1)
	top := mkPublished("two", 5)
	mkPublished("three", 3)
	newTestWorkspace(t, m, "draft", "alice") // unpublished, must not appear

	list, err := m.ListPublished(ctx, SortByStars, 0)
	if err != nil {
		t.Fatalf("list: %s", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 published workspaces, got %d", len(list))
	}
	if list[0].ID != top.ID {
		t.Errorf("expected most-starred first, got %s", list[0].Name)
	}

	limited, _ := m.ListPublished(ctx, SortByStars, 2)
	if len(limited) != 2 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestMemoryDelete_RemovesSlugAndSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ws := newTestWorkspace(t, m, "App", "alice")

	if err := m.Delete(ctx, ws.ID); err != nil {
		t.Fatalf("delete: %s", err)
	}
	if _, err := m.Get(ctx, ws.ID); err == nil {
		t.Error("deleted workspace should be gone")
	}

	// The slug is free again.
	again := newTestWorkspace(t, m, "App", "bob")
	if again.Slug != "app" {
		t.Errorf("slug should be reusable after delete, got %s", again.Slug)
	}
}
