// Package identity resolves bearer tokens to user ids.
package identity

import (
	"context"
	"strings"

	"github.com/2029ijones-sudo/os-lab/internal/core"
)

// Verifier authenticates a bearer token and returns the user id it
// belongs to.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Static verifies against a fixed token table, configured from the
// environment. Suitable for single-tenant and lab deployments.
type Static struct {
	users map[string]string // token -> user id
}

func NewStatic(users map[string]string) *Static {
	return &Static{users: users}
}

func (s *Static) Verify(ctx context.Context, token string) (string, error) {
	if uid, ok := s.users[token]; ok {
		return uid, nil
	}
	return "", core.NewAppError(core.ErrPermissionDenied, "invalid token")
}

// ParseTokens parses "token:user,token:user" pairs as used by the
// OSLAB_AUTH_TOKENS variable.
func ParseTokens(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tok, user, ok := strings.Cut(pair, ":")
		if !ok || tok == "" || user == "" {
			continue
		}
		out[tok] = user
	}
	return out
}
