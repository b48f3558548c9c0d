// Package registry maintains the one-live-session-per-workspace
// invariant. Concurrent acquisitions of the same workspace collapse
// into a single provisioning flight; idle sessions are reaped.
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/2029ijones-sudo/os-lab/internal/core"
	"github.com/2029ijones-sudo/os-lab/internal/observability"
	"github.com/2029ijones-sudo/os-lab/internal/sandbox"
	"github.com/2029ijones-sudo/os-lab/internal/session"
	"github.com/2029ijones-sudo/os-lab/internal/store"
)

type Config struct {
	IdleTimeout     time.Duration
	BootTimeout     time.Duration
	JanitorInterval time.Duration
	Session         session.Config
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 15 * time.Minute
	}
	if c.BootTimeout == 0 {
		c.BootTimeout = 2 * time.Minute
	}
	if c.JanitorInterval == 0 {
		c.JanitorInterval = time.Minute
	}
	return c
}

// inflight tracks one in-progress provisioning flight so that the last
// departing waiter can abort it.
type inflight struct {
	waiters int
	cancel  context.CancelFunc
}

type Registry struct {
	store    store.Store
	provider sandbox.Provider
	cfg      Config
	log      *zap.Logger

	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*session.Session // workspace id -> session
	byID     map[string]*session.Session // session id -> session
	flights  map[string]*inflight        // workspace id -> flight
}

func New(st store.Store, provider sandbox.Provider, cfg Config, log *zap.Logger) *Registry {
	return &Registry{
		store:    st,
		provider: provider,
		cfg:      cfg.withDefaults(),
		log:      log,
		sessions: make(map[string]*session.Session),
		byID:     make(map[string]*session.Session),
		flights:  make(map[string]*inflight),
	}
}

// Acquire returns the workspace's live session, provisioning one if
// none exists. Concurrent calls for the same workspace share one
// provisioning flight and all receive the same session. A caller whose
// context expires stops waiting; when the last waiter leaves, the
// flight itself is aborted and any partial environment torn down.
func (r *Registry) Acquire(ctx context.Context, workspaceID, requester string) (*session.Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[workspaceID]; ok && !s.State().IsTerminal() {
		r.mu.Unlock()
		s.Touch()
		observability.SessionAcquireJoinsTotal.Inc()
		return s, nil
	}
	r.mu.Unlock()

	start := time.Now()
	ch := r.group.DoChan(workspaceID, func() (any, error) {
		return r.build(workspaceID, requester)
	})
	r.addWaiter(workspaceID)
	defer r.dropWaiter(workspaceID)

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			observability.SessionAcquireJoinsTotal.Inc()
		}
		observability.SessionAcquireSeconds.Observe(time.Since(start).Seconds())
		s := res.Val.(*session.Session)
		s.Touch()
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) build(workspaceID, requester string) (*session.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.BootTimeout)
	defer cancel()

	r.mu.Lock()
	fl := r.flights[workspaceID]
	if fl == nil {
		fl = &inflight{}
		r.flights[workspaceID] = fl
	}
	fl.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.flights, workspaceID)
		r.mu.Unlock()
	}()

	ws, err := r.store.Get(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	s := session.New(workspaceID, requester, r.cfg.Session, r.log)
	if err := s.Start(ctx, r.provider, ws.Files); err != nil {
		return nil, core.NewAppError(core.ErrSandboxUnavailable, "session start: "+err.Error())
	}

	r.mu.Lock()
	r.sessions[workspaceID] = s
	r.byID[s.ID] = s
	r.mu.Unlock()
	observability.SessionsActive.Inc()
	r.log.Info("session provisioned",
		zap.String("session_id", s.ID),
		zap.String("workspace_id", workspaceID),
		zap.String("requester", requester))
	return s, nil
}

func (r *Registry) addWaiter(workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fl := r.flights[workspaceID]
	if fl == nil {
		fl = &inflight{}
		r.flights[workspaceID] = fl
	}
	fl.waiters++
}

func (r *Registry) dropWaiter(workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fl, ok := r.flights[workspaceID]
	if !ok {
		return
	}
	fl.waiters--
	if fl.waiters <= 0 {
		// Nobody is waiting on this flight anymore; abort it if it is
		// still running and drop the record either way, so fast flights
		// whose build already cleaned up leave nothing behind.
		if fl.cancel != nil {
			fl.cancel()
		}
		delete(r.flights, workspaceID)
	}
}

// Lookup resolves a session by its id.
func (r *Registry) Lookup(sessionID string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	if !ok {
		return nil, core.NewAppError(core.ErrNotFound, "session not found: "+sessionID)
	}
	return s, nil
}

// SessionFor returns the live session for a workspace without creating
// one.
func (r *Registry) SessionFor(workspaceID string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[workspaceID]
	return s, ok
}

// Release tears down a session by id. Releasing an unknown or already
// released session is a no-op.
func (r *Registry) Release(ctx context.Context, sessionID string) {
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	if ok {
		delete(r.byID, sessionID)
		if cur := r.sessions[s.WorkspaceID]; cur == s {
			delete(r.sessions, s.WorkspaceID)
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.Close(ctx)
	observability.SessionsActive.Dec()
}

// ReleaseByWorkspace tears down the workspace's live session, if any.
func (r *Registry) ReleaseByWorkspace(ctx context.Context, workspaceID string) {
	r.mu.Lock()
	s, ok := r.sessions[workspaceID]
	if ok {
		delete(r.sessions, workspaceID)
		delete(r.byID, s.ID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.Close(ctx)
	observability.SessionsActive.Dec()
}

// Run reaps idle and terminal sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *Registry) reap(ctx context.Context) {
	now := time.Now().UTC()

	r.mu.Lock()
	var stale []*session.Session
	for wid, s := range r.sessions {
		if s.State().IsTerminal() || now.Sub(s.LastActive()) > r.cfg.IdleTimeout {
			stale = append(stale, s)
			delete(r.sessions, wid)
			delete(r.byID, s.ID)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		r.log.Info("reaping session",
			zap.String("session_id", s.ID),
			zap.String("workspace_id", s.WorkspaceID),
			zap.Time("last_active", s.LastActive()))
		s.Close(ctx)
		observability.SessionsActive.Dec()
		observability.SessionsReapedTotal.Inc()
	}
}

// CloseAll tears down every live session. Used on shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	all := make([]*session.Session, 0, len(r.byID))
	for _, s := range r.byID {
		all = append(all, s)
	}
	r.sessions = make(map[string]*session.Session)
	r.byID = make(map[string]*session.Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Close(ctx)
		observability.SessionsActive.Dec()
	}
}
