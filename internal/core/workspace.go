package core

import (
	"encoding/json"
	"time"
)

// FileTree maps a slash-separated relative path to file content.
// Paths are cleaned and carry no leading slash. Insertion order is
// irrelevant; ordering guarantees live in the session write queue.
type FileTree map[string]string

// Clone returns a deep copy of the tree.
func (t FileTree) Clone() FileTree {
	if t == nil {
		return nil
	}
	out := make(FileTree, len(t))
	for p, c := range t {
		out[p] = c
	}
	return out
}

type Workspace struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Slug             string          `json:"slug"`
	OwnerID          string          `json:"owner_id"`
	Files            FileTree        `json:"files"`
	Manifest         json.RawMessage `json:"manifest,omitempty"`
	Stars            int             `json:"stars"`
	Forks            int             `json:"forks"`
	IsPublished      bool            `json:"is_published"`
	PreviewEnabled   bool            `json:"preview_enabled"`
	PreviewExpiresAt *time.Time      `json:"preview_expires_at,omitempty"`
	ParentID         *string         `json:"parent_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PreviewLive reports whether the workspace's published preview is
// reachable at the given instant: preview_enabled and not yet expired.
func (w *Workspace) PreviewLive(now time.Time) bool {
	if !w.PreviewEnabled || w.PreviewExpiresAt == nil {
		return false
	}
	return now.Before(*w.PreviewExpiresAt)
}
