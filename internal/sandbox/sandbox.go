// Package sandbox defines the execution-environment capability consumed
// by the session manager. The sandbox owns process and filesystem
// virtualization; this package only brokers it.
package sandbox

import (
	"context"
	"io"

	"github.com/2029ijones-sudo/os-lab/internal/core"
)

// ServerEvent reports a preview server starting to listen (Up) or going
// away on the given port.
type ServerEvent struct {
	Port int
	URL  string
	Up   bool
}

// Provider provisions execution environments.
type Provider interface {
	Boot(ctx context.Context) (Env, error)
}

// Env is one live execution environment. Implementations own the
// lifecycle of everything they hand out; Teardown releases it all.
type Env interface {
	// Mount writes the whole tree into the environment's filesystem.
	Mount(ctx context.Context, tree core.FileTree) error
	WriteFile(ctx context.Context, path string, content []byte) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// SpawnShell starts an interactive shell with the given dimensions.
	SpawnShell(ctx context.Context, cols, rows uint16) (Shell, error)
	// Start runs argv in the background and returns a handle to it.
	Start(ctx context.Context, argv []string) (Proc, error)
	// ServerEvents delivers preview-server notifications. The channel is
	// closed by Teardown.
	ServerEvents() <-chan ServerEvent
	Teardown(ctx context.Context) error
}

// Shell is an interactive shell channel. Writes go to stdin.
type Shell interface {
	io.WriteCloser
	Output() io.Reader
	Resize(cols, rows uint16) error
}

// Proc is a background command with explicit exit-code capture.
type Proc interface {
	Output() io.Reader
	// Wait blocks until the command exits and returns its exit code.
	Wait(ctx context.Context) (int, error)
}
