// Package store is the single persistence seam for workspaces and
// published snapshots. All operations are atomic with respect to one
// workspace record; no cross-workspace transactions exist.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/2029ijones-sudo/os-lab/internal/core"
)

// Sort orders accepted by ListPublished.
const (
	SortByStars   = "stars"
	SortByForks   = "forks"
	SortByCreated = "created"
)

type CreateParams struct {
	OwnerID  string
	Name     string
	Files    core.FileTree
	Manifest json.RawMessage
}

// UpdatePatch applies only its non-nil fields.
type UpdatePatch struct {
	Name     *string
	Files    core.FileTree
	Manifest json.RawMessage
}

type PublishParams struct {
	Files       core.FileTree
	Manifest    json.RawMessage
	PublishedAt time.Time
	ExpiresAt   time.Time
}

// Store is the workspace store plus the snapshot persistence used by the
// publication controller. Implementations surface typed *core.AppError
// values for NotFound/Conflict/Persistence failures.
type Store interface {
	Get(ctx context.Context, id string) (*core.Workspace, error)
	GetBySlug(ctx context.Context, slug string) (*core.Workspace, error)
	Create(ctx context.Context, p CreateParams) (*core.Workspace, error)
	Update(ctx context.Context, id string, patch UpdatePatch) (*core.Workspace, error)
	// Fork copies the source's last published snapshot (live tree when the
	// source was never published) into a fresh workspace with zeroed
	// social counters and a new slug. The source is read consistently.
	Fork(ctx context.Context, sourceID, newOwnerID string) (*core.Workspace, error)
	Delete(ctx context.Context, id string) error
	AddStar(ctx context.Context, id string) (*core.Workspace, error)
	ListPublished(ctx context.Context, sortBy string, limit int) ([]*core.Workspace, error)

	// Publish atomically stores the snapshot, updates the live tree, and
	// flips the publish flags. On failure the prior snapshot is untouched.
	Publish(ctx context.Context, id string, p PublishParams) (*core.PublishedSnapshot, error)
	Unpublish(ctx context.Context, id string) error
	// SnapshotBySlug returns the workspace and its published snapshot.
	SnapshotBySlug(ctx context.Context, slug string) (*core.Workspace, *core.PublishedSnapshot, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}

func errNotFound(what string) error {
	return core.NewAppError(core.ErrNotFound, what+" not found")
}

func errConflict(msg string) error {
	return core.NewAppError(core.ErrConflict, msg)
}

func errPersistence(op string, err error) error {
	return core.NewAppError(core.ErrPersistence, op+": "+err.Error())
}
