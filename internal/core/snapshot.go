package core

import (
	"encoding/json"
	"time"
)

// PublishedSnapshot is the durable copy of a workspace's file tree taken
// at publish time. Exactly one exists per workspace; publishing again
// overwrites it as a whole. The live workspace tree may drift from it.
type PublishedSnapshot struct {
	WorkspaceID      string          `json:"workspace_id"`
	Files            FileTree        `json:"files"`
	Manifest         json.RawMessage `json:"manifest,omitempty"`
	PublishedAt      time.Time       `json:"published_at"`
	PreviewExpiresAt time.Time       `json:"preview_expires_at"`
}
