// Package session implements the session registry and concurrency lock
// manager: the create/lookup/lock/unlock/delete lifecycle
// guaranteeing at-most-one active interaction per session while
// admitting many sessions in parallel.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/internal/errs"
)

// Config holds the parameters a client supplies to create or locate a
// session.
type Config struct {
	Workspace string
}

// Manager composes the session store and lock table and is the only
// component allowed to mutate either.
type Manager struct {
	store   *Store
	locks   *LockTable
	runtime Runtime
	logger  *logger.Logger

	maxSessions int

	janitorInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewManager constructs a Manager bound to an agent Runtime.
func NewManager(runtime Runtime, lockMaxAge, janitorInterval time.Duration, maxSessions int, log *logger.Logger) *Manager {
	log = log.WithFields(zap.String("component", "session-manager"))
	return &Manager{
		store:           NewStore(),
		locks:           NewLockTable(lockMaxAge, log),
		runtime:         runtime,
		logger:          log,
		maxSessions:     maxSessions,
		janitorInterval: janitorInterval,
		stopCh:          make(chan struct{}),
	}
}

// Create validates config.Workspace, asks the runtime to mint a new
// session, and registers it. No lock is acquired.
func (m *Manager) Create(ctx context.Context, cfg Config) (*Session, error) {
	workspace, err := validateWorkspace(cfg.Workspace)
	if err != nil {
		return nil, err
	}

	if m.maxSessions > 0 && m.store.Count() >= m.maxSessions {
		return nil, errs.Newf(errs.KindResourceExhausted, "session limit reached (%d)", m.maxSessions)
	}

	name := fmt.Sprintf("kaiak-%s", filepath.Base(workspace))
	handle, err := m.runtime.CreateSession(ctx, CreateParams{Name: name, Workspace: workspace, Kind: KindUser})
	if err != nil {
		return nil, errs.Wrap(errs.KindAgentIntegration, "create session", err).WithDetail("op", "create")
	}

	sess := &Session{
		ID:        handle.ID,
		Workspace: workspace,
		Name:      name,
		Kind:      KindUser,
		Native:    handle.Native,
		CreatedAt: time.Now(),
	}
	m.store.Add(sess)
	m.logger.Info("session created", zap.String("session_id", sess.ID), zap.String("workspace", workspace))
	return sess, nil
}

// GetOrCreate looks up sessionID if supplied (absence is session_not_found,
// never a silent re-create), or falls through to Create when sessionID is
// empty.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string, cfg Config) (*Session, error) {
	if sessionID == "" {
		return m.Create(ctx, cfg)
	}
	return m.Get(ctx, sessionID)
}

// Get returns the session for id, consulting the local store first and
// normalising any runtime-side "not found" to session_not_found.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if sess, ok := m.store.Get(id); ok {
		return sess, nil
	}

	handle, err := m.runtime.LookupSession(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRuntimeSessionNotFound) {
			return nil, errs.Newf(errs.KindSessionNotFound, "session %q not found", id)
		}
		return nil, errs.Wrap(errs.KindAgentIntegration, "lookup session", err).WithDetail("op", "lookup")
	}

	sess := &Session{ID: handle.ID, Native: handle.Native, CreatedAt: time.Now()}
	m.store.Add(sess)
	return sess, nil
}

// Lock acquires exclusive access to sessionID for the duration of one
// request. Requires the session to exist.
func (m *Manager) Lock(ctx context.Context, sessionID string) error {
	if _, err := m.Get(ctx, sessionID); err != nil {
		return err
	}

	acquired, lockedAt := m.locks.TryLock(sessionID)
	if !acquired {
		return errs.Newf(errs.KindSessionInUse, "session %q is in use", sessionID).
			WithDetail("locked_at", lockedAt)
	}
	return nil
}

// Unlock releases sessionID's lock. Removing an absent entry only warns.
func (m *Manager) Unlock(sessionID string) {
	m.locks.Unlock(sessionID)
}

// IsLocked reports whether sessionID currently holds a lock.
func (m *Manager) IsLocked(sessionID string) (bool, time.Time) {
	return m.locks.IsLocked(sessionID)
}

// Delete destroys sessionID via the runtime and removes it from the
// store. Fails with session_in_use if the session is currently locked.
// Returns whether a session was actually removed.
func (m *Manager) Delete(ctx context.Context, sessionID string) (bool, error) {
	if locked, lockedAt := m.locks.IsLocked(sessionID); locked {
		return false, errs.Newf(errs.KindSessionInUse, "session %q is in use", sessionID).
			WithDetail("locked_at", lockedAt)
	}

	if err := m.runtime.DestroySession(ctx, sessionID); err != nil {
		if !errors.Is(err, ErrRuntimeSessionNotFound) {
			return false, errs.Wrap(errs.KindAgentIntegration, "destroy session", err).WithDetail("op", "delete")
		}
	}

	removed := m.store.Remove(sessionID)
	m.locks.Unlock(sessionID) // idempotent: clears any stray lock entry left behind
	m.logger.Info("session deleted", zap.String("session_id", sessionID), zap.Bool("removed", removed))
	return removed, nil
}

// SessionSummary is a read-only snapshot of one registered session for
// status surfaces (e.g. the admin HTTP health/status endpoints).
type SessionSummary struct {
	ID        string
	Workspace string
	Name      string
	CreatedAt time.Time
	Locked    bool
	LockedAt  time.Time
}

// ListSessions returns a snapshot of every registered session, joined
// with its current lock state.
func (m *Manager) ListSessions() []SessionSummary {
	sessions := m.store.List()
	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		locked, lockedAt := m.locks.IsLocked(sess.ID)
		out = append(out, SessionSummary{
			ID:        sess.ID,
			Workspace: sess.Workspace,
			Name:      sess.Name,
			CreatedAt: sess.CreatedAt,
			Locked:    locked,
			LockedAt:  lockedAt,
		})
	}
	return out
}

// StartJanitor launches the background goroutine that sweeps stale lock
// entries at m.janitorInterval. Call Stop to shut it down.
func (m *Manager) StartJanitor() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := m.locks.Sweep(); n > 0 {
					m.logger.Info("lock janitor swept stale locks", zap.Int("count", n))
				}
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop halts the janitor goroutine and waits for it to exit.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// validateWorkspace canonicalises a relative workspace path against the
// process cwd and confirms it is an existing directory.
func validateWorkspace(workspace string) (string, error) {
	if workspace == "" {
		return "", errs.New(errs.KindWorkspaceInvalid, "workspace must not be empty")
	}

	abs := workspace
	if !filepath.IsAbs(abs) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", errs.Wrap(errs.KindInternal, "resolve cwd", err)
		}
		abs = filepath.Join(cwd, workspace)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", errs.Wrap(errs.KindWorkspaceInvalid, fmt.Sprintf("workspace %q does not exist", abs), err)
	}
	if !info.IsDir() {
		return "", errs.Newf(errs.KindWorkspaceInvalid, "workspace %q is not a directory", abs)
	}
	return abs, nil
}
