package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2029ijones-sudo/os-lab/internal/core"
)

// Memory is an in-process Store used by tests and DSN-less local runs.
// It honors the same contract as Postgres, including slug uniqueness and
// all-or-nothing publish.
type Memory struct {
	mu         sync.RWMutex
	workspaces map[string]*core.Workspace
	snapshots  map[string]*core.PublishedSnapshot
	slugs      map[string]string // slug -> workspace id
}

func NewMemory() *Memory {
	return &Memory{
		workspaces: make(map[string]*core.Workspace),
		snapshots:  make(map[string]*core.PublishedSnapshot),
		slugs:      make(map[string]string),
	}
}

func copyWorkspace(ws *core.Workspace) *core.Workspace {
	out := *ws
	out.Files = ws.Files.Clone()
	if ws.PreviewExpiresAt != nil {
		t := *ws.PreviewExpiresAt
		out.PreviewExpiresAt = &t
	}
	if ws.ParentID != nil {
		p := *ws.ParentID
		out.ParentID = &p
	}
	return &out
}

func copySnapshot(s *core.PublishedSnapshot) *core.PublishedSnapshot {
	out := *s
	out.Files = s.Files.Clone()
	return &out
}

func (m *Memory) Get(ctx context.Context, id string) (*core.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, errNotFound("workspace")
	}
	return copyWorkspace(ws), nil
}

func (m *Memory) GetBySlug(ctx context.Context, slug string) (*core.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.slugs[slug]
	if !ok {
		return nil, errNotFound("workspace")
	}
	return copyWorkspace(m.workspaces[id]), nil
}

func (m *Memory) Create(ctx context.Context, p CreateParams) (*core.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := core.Slugify(p.Name)
	slug := base
	for attempt := 0; ; attempt++ {
		if _, taken := m.slugs[slug]; !taken {
			break
		}
		if attempt >= 3 {
			return nil, errConflict("slug already taken: " + slug)
		}
		slug = base + "-" + core.SlugSuffix()
	}

	now := time.Now().UTC()
	ws := &core.Workspace{
		ID:        core.NewID(),
		Name:      p.Name,
		Slug:      slug,
		OwnerID:   p.OwnerID,
		Files:     p.Files.Clone(),
		Manifest:  p.Manifest,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ws.Files == nil {
		ws.Files = core.FileTree{}
	}
	m.workspaces[ws.ID] = ws
	m.slugs[slug] = ws.ID
	return copyWorkspace(ws), nil
}

func (m *Memory) Update(ctx context.Context, id string, patch UpdatePatch) (*core.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, errNotFound("workspace")
	}
	if patch.Name != nil {
		ws.Name = *patch.Name
	}
	if patch.Files != nil {
		ws.Files = patch.Files.Clone()
	}
	if patch.Manifest != nil {
		ws.Manifest = patch.Manifest
	}
	ws.UpdatedAt = time.Now().UTC()
	return copyWorkspace(ws), nil
}

func (m *Memory) Fork(ctx context.Context, sourceID, newOwnerID string) (*core.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.workspaces[sourceID]
	if !ok {
		return nil, errNotFound("workspace")
	}

	tree, manifest := src.Files, src.Manifest
	if snap, ok := m.snapshots[sourceID]; ok {
		tree, manifest = snap.Files, snap.Manifest
	}

	slug := core.ForkSlug(src.Slug)
	if _, taken := m.slugs[slug]; taken {
		return nil, errConflict("fork slug already taken: " + slug)
	}

	now := time.Now().UTC()
	parent := sourceID
	fork := &core.Workspace{
		ID:        core.NewID(),
		Name:      src.Name + " (fork)",
		Slug:      slug,
		OwnerID:   newOwnerID,
		Files:     tree.Clone(),
		Manifest:  manifest,
		ParentID:  &parent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.workspaces[fork.ID] = fork
	m.slugs[slug] = fork.ID
	src.Forks++
	src.UpdatedAt = now
	return copyWorkspace(fork), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return errNotFound("workspace")
	}
	delete(m.slugs, ws.Slug)
	delete(m.workspaces, id)
	delete(m.snapshots, id)
	return nil
}

func (m *Memory) AddStar(ctx context.Context, id string) (*core.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, errNotFound("workspace")
	}
	ws.Stars++
	ws.UpdatedAt = time.Now().UTC()
	return copyWorkspace(ws), nil
}

func (m *Memory) ListPublished(ctx context.Context, sortBy string, limit int) ([]*core.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*core.Workspace
	for _, ws := range m.workspaces {
		if ws.IsPublished {
			out = append(out, copyWorkspace(ws))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		switch sortBy {
		case SortByStars:
			if out[i].Stars != out[j].Stars {
				return out[i].Stars > out[j].Stars
			}
		case SortByForks:
			if out[i].Forks != out[j].Forks {
				return out[i].Forks > out[j].Forks
			}
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Publish(ctx context.Context, id string, p PublishParams) (*core.PublishedSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, errNotFound("workspace")
	}
	snap := &core.PublishedSnapshot{
		WorkspaceID:      id,
		Files:            p.Files.Clone(),
		Manifest:         p.Manifest,
		PublishedAt:      p.PublishedAt,
		PreviewExpiresAt: p.ExpiresAt,
	}
	m.snapshots[id] = snap
	ws.Files = p.Files.Clone()
	if p.Manifest != nil {
		ws.Manifest = p.Manifest
	}
	ws.IsPublished = true
	ws.PreviewEnabled = true
	expires := p.ExpiresAt
	ws.PreviewExpiresAt = &expires
	ws.UpdatedAt = time.Now().UTC()
	return copySnapshot(snap), nil
}

func (m *Memory) Unpublish(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return errNotFound("workspace")
	}
	ws.PreviewEnabled = false
	ws.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) SnapshotBySlug(ctx context.Context, slug string) (*core.Workspace, *core.PublishedSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.slugs[slug]
	if !ok {
		return nil, nil, errNotFound("workspace")
	}
	ws := copyWorkspace(m.workspaces[id])
	snap, ok := m.snapshots[id]
	if !ok {
		return ws, nil, nil
	}
	return ws, copySnapshot(snap), nil
}
