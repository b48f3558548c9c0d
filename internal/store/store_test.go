package store

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/2029ijones-sudo/os-lab/internal/core"
)

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("oslab"),
		postgres.WithUsername("oslab"),
		postgres.WithPassword("oslab_pass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections"),
		),
	)
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
	}
	defer pgContainer.Terminate(ctx)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	pool, err := NewPool(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to connect: %s", err)
	}
	defer pool.Close()

	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("failed to run migrations: %s", err)
	}

	st := NewPostgres(pool)

	var wsID string
	t.Run("Create", func(t *testing.T) {
		ws, err := st.Create(ctx, CreateParams{
			OwnerID: "test-user",
			Name:    "Test App",
			Files:   core.FileTree{"index.html": "<html></html>", "main.js": "void 0"},
		})
		if err != nil {
			t.Fatalf("create: %s", err)
		}
		if ws.Slug != "test-app" {
			t.Errorf("expected slug test-app, got %s", ws.Slug)
		}
		wsID = ws.ID
	})

	t.Run("GetBySlug", func(t *testing.T) {
		ws, err := st.GetBySlug(ctx, "test-app")
		if err != nil {
			t.Fatalf("get by slug: %s", err)
		}
		if ws.ID != wsID {
			t.Errorf("slug resolved to wrong workspace")
		}
		if ws.Files["index.html"] != "<html></html>" {
			t.Errorf("file tree did not round-trip")
		}
	})

	t.Run("SlugCollision", func(t *testing.T) {
		ws, err := st.Create(ctx, CreateParams{
			OwnerID: "other-user",
			Name:    "Test App",
			Files:   core.FileTree{},
		})
		if err != nil {
			t.Fatalf("create with colliding name: %s", err)
		}
		if ws.Slug == "test-app" {
			t.Errorf("colliding slug was not disambiguated")
		}
	})

	t.Run("Update", func(t *testing.T) {
		name := "Renamed App"
		ws, err := st.Update(ctx, wsID, UpdatePatch{
			Name:  &name,
			Files: core.FileTree{"index.html": "v2"},
		})
		if err != nil {
			t.Fatalf("update: %s", err)
		}
		if ws.Name != "Renamed App" || ws.Files["index.html"] != "v2" {
			t.Errorf("patch not applied: %+v", ws)
		}
	})

	t.Run("PublishAndSnapshot", func(t *testing.T) {
		now := time.Now().UTC()
		snap, err := st.Publish(ctx, wsID, PublishParams{
			Files:       core.FileTree{"index.html": "published"},
			PublishedAt: now,
			ExpiresAt:   now.Add(7 * 24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("publish: %s", err)
		}
		if snap.Files["index.html"] != "published" {
			t.Errorf("snapshot tree mismatch")
		}

		ws, _, err := st.SnapshotBySlug(ctx, "test-app")
		if err != nil {
			t.Fatalf("snapshot by slug: %s", err)
		}
		if !ws.IsPublished || !ws.PreviewEnabled {
			t.Errorf("publish flags not set")
		}
	})

	t.Run("Republish", func(t *testing.T) {
		now := time.Now().UTC()
		if _, err := st.Publish(ctx, wsID, PublishParams{
			Files:       core.FileTree{"index.html": "v3"},
			PublishedAt: now,
			ExpiresAt:   now.Add(time.Hour),
		}); err != nil {
			t.Fatalf("republish: %s", err)
		}
		_, snap, err := st.SnapshotBySlug(ctx, "test-app")
		if err != nil {
			t.Fatalf("snapshot by slug: %s", err)
		}
		if snap == nil || snap.Files["index.html"] != "v3" {
			t.Errorf("republish should replace the snapshot")
		}
	})

	t.Run("StarAndList", func(t *testing.T) {
		if _, err := st.AddStar(ctx, wsID); err != nil {
			t.Fatalf("star: %s", err)
		}
		list, err := st.ListPublished(ctx, SortByStars, 10)
		if err != nil {
			t.Fatalf("list published: %s", err)
		}
		if len(list) != 1 || list[0].Stars != 1 {
			t.Errorf("expected one published workspace with one star, got %+v", list)
		}
	})

	t.Run("Fork", func(t *testing.T) {
		fork, err := st.Fork(ctx, wsID, "fork-user")
		if err != nil {
			t.Fatalf("fork: %s", err)
		}
		if fork.Files["index.html"] != "v3" {
			t.Errorf("fork should copy the published snapshot, got %q", fork.Files["index.html"])
		}
		if fork.ParentID == nil || *fork.ParentID != wsID {
			t.Errorf("fork parent not recorded")
		}
		src, _ := st.Get(ctx, wsID)
		if src.Forks != 1 {
			t.Errorf("source fork counter should be 1, got %d", src.Forks)
		}
	})

	t.Run("UnpublishAndDelete", func(t *testing.T) {
		if err := st.Unpublish(ctx, wsID); err != nil {
			t.Fatalf("unpublish: %s", err)
		}
		ws, _ := st.Get(ctx, wsID)
		if ws.PreviewEnabled {
			t.Errorf("unpublish should disable the preview")
		}
		if err := st.Delete(ctx, wsID); err != nil {
			t.Fatalf("delete: %s", err)
		}
		if _, err := st.Get(ctx, wsID); err == nil {
			t.Errorf("deleted workspace should be gone")
		}
	})
}
