// Package session implements the execution session: the live binding of
// one workspace to one sandboxed environment, with a mounted file tree,
// an interactive shell, and at most one detected preview endpoint.
package session

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/2029ijones-sudo/os-lab/internal/core"
	"github.com/2029ijones-sudo/os-lab/internal/observability"
	"github.com/2029ijones-sudo/os-lab/internal/sandbox"
)

type Config struct {
	// InstallCommand is dispatched once the shell is up. It never gates
	// the Ready transition; its exit code is captured in the background.
	InstallCommand []string
	WriteQueueMax  int
	ShellCols      uint16
	ShellRows      uint16
}

func (c Config) withDefaults() Config {
	if c.InstallCommand == nil {
		c.InstallCommand = []string{"npm", "install"}
	}
	if c.WriteQueueMax == 0 {
		c.WriteQueueMax = 256
	}
	if c.ShellCols == 0 {
		c.ShellCols = 80
	}
	if c.ShellRows == 0 {
		c.ShellRows = 24
	}
	return c
}

// StateChange is delivered to subscribers on every transition.
type StateChange struct {
	State      core.SessionState `json:"state"`
	PreviewURL string            `json:"preview_url,omitempty"`
	Error      string            `json:"error,omitempty"`
	At         time.Time         `json:"at"`
}

// Info is a point-in-time snapshot of session state.
type Info struct {
	ID              string            `json:"id"`
	WorkspaceID     string            `json:"workspace_id"`
	State           core.SessionState `json:"state"`
	PreviewURL      string            `json:"preview_url,omitempty"`
	InstallExitCode *int              `json:"install_exit_code,omitempty"`
	Error           string            `json:"error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	LastActiveAt    time.Time         `json:"last_active_at"`
}

var (
	ErrWriteQueueFull = core.NewAppError(core.ErrConflict, "write queue full")
	ErrNotInteractive = core.NewAppError(core.ErrConflict, "session shell is not interactive yet")
)

type pendingWrite struct {
	path    string
	content string
}

type Session struct {
	ID          string
	WorkspaceID string
	Requester   string

	cfg Config
	log *zap.Logger

	mu          sync.Mutex
	state       core.SessionState
	stateErr    string
	previewURL  string
	installExit *int
	env         sandbox.Env
	shell       sandbox.Shell
	tree        core.FileTree
	pending     []pendingWrite
	pendingIdx  map[string]int
	subs        map[int]chan StateChange
	nextSub     int
	createdAt   time.Time
	lastActive  time.Time

	out       *outputMux
	closeOnce sync.Once
}

func New(workspaceID, requester string, cfg Config, log *zap.Logger) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:          core.NewID(),
		WorkspaceID: workspaceID,
		Requester:   requester,
		cfg:         cfg.withDefaults(),
		state:       core.SessionBooting,
		pendingIdx:  make(map[string]int),
		subs:        make(map[int]chan StateChange),
		createdAt:   now,
		lastActive:  now,
		out:         &outputMux{},
	}
	s.log = observability.SessionLogger(log, s.ID, workspaceID)
	return s
}

// Start drives the session to Ready: provision the environment, mount
// the tree, spawn the shell, dispatch the install, replay queued writes.
// On error the session ends Failed with any partial environment torn
// down; callers must acquire a fresh session.
func (s *Session) Start(ctx context.Context, provider sandbox.Provider, tree core.FileTree) error {
	bootStart := time.Now()
	env, err := provider.Boot(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("boot: %w", err))
	}
	observability.SandboxBootSeconds.Observe(time.Since(bootStart).Seconds())

	s.mu.Lock()
	s.env = env
	s.tree = tree.Clone()
	if s.tree == nil {
		s.tree = core.FileTree{}
	}
	s.transitionLocked(core.SessionMounting)
	s.mu.Unlock()

	if err := env.Mount(ctx, tree); err != nil {
		return s.fail(fmt.Errorf("mount: %w", err))
	}

	shell, err := env.SpawnShell(ctx, s.cfg.ShellCols, s.cfg.ShellRows)
	if err != nil {
		return s.fail(fmt.Errorf("spawn shell: %w", err))
	}

	s.mu.Lock()
	s.shell = shell
	s.transitionLocked(core.SessionInstalling)
	s.mu.Unlock()

	go func() {
		_, _ = io.Copy(s.out, shell.Output())
	}()

	s.dispatchInstall(ctx, env)

	if err := s.drainAndReady(ctx, env); err != nil {
		return s.fail(fmt.Errorf("replay queued writes: %w", err))
	}
	s.log.Info("session ready")

	go s.watchServer(env.ServerEvents())
	return nil
}

// dispatchInstall fires the dependency install as a background task. Its
// output lands on the session output channel; its exit code is captured
// but never transitions the session.
func (s *Session) dispatchInstall(ctx context.Context, env sandbox.Env) {
	if len(s.cfg.InstallCommand) == 0 {
		return
	}
	proc, err := env.Start(ctx, s.cfg.InstallCommand)
	if err != nil {
		s.log.Warn("install dispatch failed", zap.Error(err))
		return
	}
	go func() {
		_, _ = io.Copy(s.out, proc.Output())
	}()
	go func() {
		code, err := proc.Wait(context.Background())
		if err != nil {
			s.log.Warn("install wait failed", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.installExit = &code
		s.mu.Unlock()
		if code != 0 {
			s.log.Warn("install exited non-zero", zap.Int("exit_code", code))
		} else {
			s.log.Info("install completed")
		}
	}()
}

// drainAndReady replays queued writes and transitions to Ready. Writes
// keep landing on the queue while a replay batch is in flight, so the
// loop runs until the transition happens under the same lock that saw
// an empty queue; nothing can slip between drain and Ready.
func (s *Session) drainAndReady(ctx context.Context, env sandbox.Env) error {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.transitionLocked(core.SessionReady)
			s.mu.Unlock()
			return nil
		}
		pending := s.pending
		s.pending = nil
		s.pendingIdx = make(map[string]int)
		s.mu.Unlock()

		for _, w := range pending {
			if err := env.WriteFile(ctx, w.path, []byte(w.content)); err != nil {
				return err
			}
			s.mu.Lock()
			s.tree[w.path] = w.content
			s.mu.Unlock()
		}
		observability.QueuedWritesReplayedTotal.Add(float64(len(pending)))
		s.log.Info("replayed queued writes", zap.Int("count", len(pending)))
	}
}

// WriteFile applies an edit to the mounted tree. Before the session is
// Ready the write is queued in submission order; writes to an already
// queued path coalesce in place (last writer wins). A full queue rejects
// the write rather than dropping anything silently.
func (s *Session) WriteFile(ctx context.Context, p, content string) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lastActive = time.Now().UTC()

	switch {
	case s.state.IsTerminal():
		state := s.state
		s.mu.Unlock()
		return core.NewAppError(core.ErrConflict, "session is "+strings.ToLower(string(state)))
	case s.state.IsReady():
		// The copy into the environment can be slow; do it unlocked so
		// state reads and the janitor are not held up behind it.
		env := s.env
		s.mu.Unlock()
		if err := env.WriteFile(ctx, p, []byte(content)); err != nil {
			return core.NewAppError(core.ErrSandboxUnavailable, "write file: "+err.Error())
		}
		s.mu.Lock()
		s.tree[p] = content
		s.mu.Unlock()
		return nil
	default:
		defer s.mu.Unlock()
		if idx, ok := s.pendingIdx[p]; ok {
			s.pending[idx].content = content
			return nil
		}
		if len(s.pending) >= s.cfg.WriteQueueMax {
			observability.WriteQueueOverflowTotal.Inc()
			s.log.Warn("write queue full, rejecting write", zap.String("path", p))
			return ErrWriteQueueFull
		}
		s.pending = append(s.pending, pendingWrite{path: p, content: content})
		s.pendingIdx[p] = len(s.pending) - 1
		return nil
	}
}

// ReadFile reads from the live environment when it is up, otherwise from
// the tracked tree (including queued writes).
func (s *Session) ReadFile(ctx context.Context, p string) (string, error) {
	p, err := cleanPath(p)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.lastActive = time.Now().UTC()
	if s.state.IsReady() {
		env := s.env
		s.mu.Unlock()
		b, err := env.ReadFile(ctx, p)
		if err != nil {
			return "", core.NewAppError(core.ErrNotFound, "file not found: "+p)
		}
		return string(b), nil
	}
	defer s.mu.Unlock()
	if idx, ok := s.pendingIdx[p]; ok {
		return s.pending[idx].content, nil
	}
	if c, ok := s.tree[p]; ok {
		return c, nil
	}
	return "", core.NewAppError(core.ErrNotFound, "file not found: "+p)
}

// Exec dispatches a command in the environment, its output multiplexed
// onto the session output channel.
func (s *Session) Exec(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return core.NewAppError(core.ErrBadRequest, "empty command")
	}
	s.mu.Lock()
	if !s.state.IsReady() {
		s.mu.Unlock()
		return ErrNotInteractive
	}
	env := s.env
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()

	proc, err := env.Start(ctx, argv)
	if err != nil {
		return core.NewAppError(core.ErrSandboxUnavailable, "exec: "+err.Error())
	}
	go func() {
		_, _ = io.Copy(s.out, proc.Output())
	}()
	go func() {
		code, err := proc.Wait(context.Background())
		if err == nil {
			s.log.Info("command exited", zap.Strings("argv", argv), zap.Int("exit_code", code))
		}
	}()
	return nil
}

// WriteInput forwards bytes to the shell's stdin.
func (s *Session) WriteInput(p []byte) error {
	s.mu.Lock()
	shell := s.shell
	ready := s.state.IsReady()
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()
	if !ready || shell == nil {
		return ErrNotInteractive
	}
	_, err := shell.Write(p)
	return err
}

// ResizeShell adjusts the shell's terminal dimensions.
func (s *Session) ResizeShell(cols, rows uint16) error {
	s.mu.Lock()
	shell := s.shell
	s.mu.Unlock()
	if shell == nil {
		return ErrNotInteractive
	}
	return shell.Resize(cols, rows)
}

// AttachOutput streams shell and background-command output to w until
// the returned detach func runs. Output with no consumer is discarded,
// matching a detached terminal.
func (s *Session) AttachOutput(w io.Writer) func() {
	return s.out.attach(w)
}

// Tree returns the current file state: the mounted tree with applied and
// queued writes folded in, queued ones in submission order.
func (s *Session) Tree() core.FileTree {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.tree.Clone()
	if out == nil {
		out = core.FileTree{}
	}
	for _, w := range s.pending {
		out[w.path] = w.content
	}
	return out
}

// Subscribe registers for state-change notifications. The current state
// is delivered immediately. The returned func unsubscribes and closes
// the channel; it is safe to call more than once.
func (s *Session) Subscribe() (<-chan StateChange, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan StateChange, 8)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.changeLocked()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Close releases the session. Idempotent; teardown failures are logged
// and suppressed.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		env := s.env
		s.env = nil
		// A failed session stays Failed; Close only releases resources.
		if !s.state.IsTerminal() {
			s.transitionLocked(core.SessionClosed)
		}
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		s.mu.Unlock()

		if env != nil {
			if err := env.Teardown(ctx); err != nil {
				s.log.Warn("teardown failed", zap.Error(err))
			}
		}
		s.log.Info("session closed")
	})
}

// Info returns a snapshot of the session's externally visible state.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:              s.ID,
		WorkspaceID:     s.WorkspaceID,
		State:           s.state,
		PreviewURL:      s.previewURL,
		InstallExitCode: s.installExit,
		Error:           s.stateErr,
		CreatedAt:       s.createdAt,
		LastActiveAt:    s.lastActive,
	}
}

func (s *Session) State() core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Touch marks client activity, deferring idle teardown.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) watchServer(events <-chan sandbox.ServerEvent) {
	for ev := range events {
		s.mu.Lock()
		switch {
		case ev.Up && s.state == core.SessionReady:
			s.previewURL = ev.URL
			s.transitionLocked(core.SessionPreviewAvailable)
			s.log.Info("preview available", zap.String("url", ev.URL), zap.Int("port", ev.Port))
		case !ev.Up && s.state == core.SessionPreviewAvailable:
			s.previewURL = ""
			s.transitionLocked(core.SessionReady)
			s.log.Info("preview gone", zap.Int("port", ev.Port))
		}
		s.mu.Unlock()
	}
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return err
	}
	s.stateErr = err.Error()
	s.transitionLocked(core.SessionFailed)
	env := s.env
	s.env = nil
	s.mu.Unlock()

	s.log.Error("session failed", zap.Error(err))
	if env != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if terr := env.Teardown(ctx); terr != nil {
			s.log.Warn("teardown after failure failed", zap.Error(terr))
		}
	}
	return err
}

func (s *Session) transitionLocked(to core.SessionState) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	observability.SessionStateTransitions.WithLabelValues(string(from), string(to)).Inc()
	change := s.changeLocked()
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
			// Slow subscriber; it resyncs from the next change.
		}
	}
}

func (s *Session) changeLocked() StateChange {
	return StateChange{
		State:      s.state,
		PreviewURL: s.previewURL,
		Error:      s.stateErr,
		At:         time.Now().UTC(),
	}
}

func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", core.NewAppError(core.ErrBadRequest, "invalid path: "+p)
		}
	}
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return "", core.NewAppError(core.ErrBadRequest, "invalid path: "+p)
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

// outputMux fans session output to the currently attached consumer, if
// any. One consumer at a time; unconsumed output is dropped.
type outputMux struct {
	mu sync.Mutex
	w  io.Writer
}

func (m *outputMux) attach(w io.Writer) func() {
	m.mu.Lock()
	m.w = w
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		if m.w == w {
			m.w = nil
		}
		m.mu.Unlock()
	}
}

func (m *outputMux) Write(p []byte) (int, error) {
	m.mu.Lock()
	w := m.w
	m.mu.Unlock()
	if w == nil {
		return len(p), nil
	}
	if _, err := w.Write(p); err != nil {
		m.mu.Lock()
		if m.w == w {
			m.w = nil
		}
		m.mu.Unlock()
	}
	return len(p), nil
}
