// Package publish implements workspace publication: atomic snapshot
// persistence, preview URLs, and time-boxed preview availability.
package publish

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/2029ijones-sudo/os-lab/internal/core"
	"github.com/2029ijones-sudo/os-lab/internal/observability"
	"github.com/2029ijones-sudo/os-lab/internal/store"
)

const DefaultPreviewTTL = 7 * 24 * time.Hour

type Publisher struct {
	store   store.Store
	ttl     time.Duration
	baseURL string
	log     *zap.Logger

	// now is swapped in tests to pin the clock.
	now func() time.Time
}

func New(st store.Store, ttl time.Duration, baseURL string, log *zap.Logger) *Publisher {
	if ttl <= 0 {
		ttl = DefaultPreviewTTL
	}
	return &Publisher{
		store:   st,
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Result is what a successful publish hands back to the caller.
type Result struct {
	Workspace  *core.Workspace         `json:"workspace"`
	Snapshot   *core.PublishedSnapshot `json:"snapshot"`
	PreviewURL string                  `json:"preview_url"`
}

// Publish persists the given tree as the workspace's published snapshot
// and opens its preview window. The snapshot and the workspace flags
// commit together or not at all; republishing replaces the snapshot and
// restarts the window.
func (p *Publisher) Publish(ctx context.Context, workspaceID string, files core.FileTree, manifest []byte) (*Result, error) {
	now := p.now()
	snap, err := p.store.Publish(ctx, workspaceID, store.PublishParams{
		Files:       files,
		Manifest:    manifest,
		PublishedAt: now,
		ExpiresAt:   now.Add(p.ttl),
	})
	if err != nil {
		observability.PublishTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	ws, err := p.store.Get(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	observability.PublishTotal.WithLabelValues("ok").Inc()
	p.log.Info("workspace published",
		zap.String("workspace_id", workspaceID),
		zap.String("slug", ws.Slug),
		zap.Time("preview_expires_at", snap.PreviewExpiresAt))
	return &Result{Workspace: ws, Snapshot: snap, PreviewURL: p.PreviewURL(ws.Slug)}, nil
}

// Unpublish disables preview serving. The snapshot is retained; forks
// taken later still copy the last published state.
func (p *Publisher) Unpublish(ctx context.Context, workspaceID string) error {
	if err := p.store.Unpublish(ctx, workspaceID); err != nil {
		return err
	}
	p.log.Info("workspace unpublished", zap.String("workspace_id", workspaceID))
	return nil
}

// PreviewURL returns the public URL a published workspace is served at.
func (p *Publisher) PreviewURL(slug string) string {
	return p.baseURL + "/v1/preview/" + slug
}

// Preview resolves a slug to its published snapshot, enforcing the
// preview window. At or after the expiry instant the preview is gone.
func (p *Publisher) Preview(ctx context.Context, slug string) (*core.Workspace, *core.PublishedSnapshot, error) {
	ws, snap, err := p.store.SnapshotBySlug(ctx, slug)
	if err != nil {
		observability.PreviewRequestsTotal.WithLabelValues("not_found").Inc()
		return nil, nil, err
	}
	if snap == nil || !ws.PreviewEnabled {
		observability.PreviewRequestsTotal.WithLabelValues("not_found").Inc()
		return nil, nil, core.NewAppError(core.ErrNotFound, "no published preview for: "+slug)
	}
	if !p.now().Before(snap.PreviewExpiresAt) {
		observability.PreviewRequestsTotal.WithLabelValues("expired").Inc()
		return nil, nil, core.NewAppError(core.ErrExpired, "preview expired for: "+slug)
	}
	observability.PreviewRequestsTotal.WithLabelValues("ok").Inc()
	return ws, snap, nil
}
