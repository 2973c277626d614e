package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
	"golang.org/x/sync/singleflight"
)

const subscriberBuffer = 8

// Manager is the authentication state machine. It is safe for concurrent use.
type Manager struct {
	api    AuthAPI
	store  TokenStore
	bearer *Bearer
	logger *log.Logger

	mu          sync.Mutex
	state       State
	user        *models.User
	epoch       uint64
	initialized bool
	subs        map[int]chan Snapshot
	nextSub     int

	ready     chan struct{}
	readyOnce sync.Once

	refreshes singleflight.Group
}

// NewManager creates a manager in the Initializing state.
// A nil bearer allocates a new one; pass a shared bearer to hand it to the HTTP client first.
func NewManager(api AuthAPI, store TokenStore, bearer *Bearer, logger *log.Logger) *Manager {
	if bearer == nil {
		bearer = &Bearer{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		api:    api,
		store:  store,
		bearer: bearer,
		logger: logger.With("component", "session"),
		state:  Initializing,
		subs:   make(map[int]chan Snapshot),
		ready:  make(chan struct{}),
	}
}

// Bearer returns the credential the HTTP client should authorize requests with.
func (m *Manager) Bearer() *Bearer { return m.bearer }

// Ready is closed once the manager first leaves Initializing.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// User returns a copy of the current identity, or nil.
func (m *Manager) User() *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Loading reports whether the initial resolution is still pending.
func (m *Manager) Loading() bool {
	return m.State() == Initializing
}

// Token returns the installed access token or "".
func (m *Manager) Token() string { return m.bearer.AccessToken() }

// TokenExpiry returns the unverified exp claim of the installed token.
func (m *Manager) TokenExpiry() time.Time { return m.bearer.Expiry() }

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{State: m.state, Epoch: m.epoch}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

// Subscribe returns a channel of snapshots sent on every state or identity change,
// and a function that cancels the subscription. Slow subscribers miss updates rather than block.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Snapshot, subscriberBuffer)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Wait blocks until the initial resolution and returns the state at that point.
func (m *Manager) Wait(ctx context.Context) (State, error) {
	select {
	case <-m.ready:
		return m.State(), nil
	case <-ctx.Done():
		return Initializing, ctx.Err()
	}
}

func (m *Manager) notifyLocked() {
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// setStateLocked transitions and publishes. Leaving Initializing closes Ready.
func (m *Manager) setStateLocked(s State, user *models.User) {
	m.state = s
	m.user = user
	if s != Initializing {
		m.readyOnce.Do(func() { close(m.ready) })
	}
	m.notifyLocked()
}

func (m *Manager) currentEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// installLocked replaces the token in memory and in the store.
func (m *Manager) installLocked(ctx context.Context, token string) error {
	m.bearer.set(token)
	if err := m.store.Save(ctx, token); err != nil {
		m.logger.Warn("could not persist access token", "err", err)
		return fmt.Errorf("saving access token: %w", err)
	}
	return nil
}

// clearLocked drops the token from memory and the store and starts a new epoch.
func (m *Manager) clearLocked(ctx context.Context) {
	m.epoch++
	m.bearer.set("")
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("could not clear stored access token", "err", err)
	}
}

// Initialize resolves the session from the stored token or the refresh cookie.
//
// It always ends in Authenticated or Unauthenticated and returns that state.
// Auth failures are settled, not returned. Calls after the first wait for that resolution
// and report it; they return Initializing if ctx is done first.
func (m *Manager) Initialize(ctx context.Context) State {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		select {
		case <-m.ready:
		case <-ctx.Done():
		}
		return m.State()
	}
	m.initialized = true
	m.mu.Unlock()

	token, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("could not load stored access token", "err", err)
		token = ""
	}

	if token != "" {
		m.logger.Debug("found stored access token")
		m.bearer.set(token)
		if err := m.fetchIdentity(ctx, true); err != nil {
			m.logger.Debug("identity check failed", "err", err)
		}
	} else {
		m.logger.Debug("no stored access token, trying refresh cookie")
		if err := m.Refresh(ctx); err != nil {
			m.logger.Debug("silent refresh failed", "err", err)
		} else if err := m.fetchIdentity(ctx, false); err != nil {
			m.logger.Debug("identity check failed", "err", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Initializing {
		m.setStateLocked(Unauthenticated, nil)
	}
	m.logger.Info("session resolved", "state", m.state)
	return m.state
}

// Login exchanges credentials for a token, installs it and fetches the identity.
//
// Rejections wrap [shared.ErrAuthFailed] together with the server's error.
// State is unchanged when the credentials are rejected.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	epoch := m.currentEpoch()

	token, err := m.api.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrAuthFailed) {
			return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
		}
		return err
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return shared.ErrStaleResponse
	}
	m.epoch++
	if err := m.installLocked(ctx, token); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	if err := m.fetchIdentity(ctx, true); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
	}

	m.logger.Info("logged in", "username", username)
	return nil
}

// Adopt installs a token obtained outside the manager, such as one copied from a browser
// session, and resolves the identity for it. A rejected token goes through the usual
// refresh-once policy.
func (m *Manager) Adopt(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty access token", shared.ErrInvalidInput)
	}

	m.mu.Lock()
	m.epoch++
	m.initialized = true
	if err := m.installLocked(ctx, token); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	if err := m.fetchIdentity(ctx, true); err != nil {
		m.mu.Lock()
		if m.state == Initializing {
			m.setStateLocked(Unauthenticated, nil)
		}
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
	}
	return nil
}

// Logout invalidates the refresh cookie server-side when possible, then always clears
// the local token and identity and settles Unauthenticated.
//
// A failed logout call is logged; it never leaves local credentials behind.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.epoch++
	m.mu.Unlock()

	if err := m.api.Logout(ctx); err != nil {
		m.logger.Warn("server logout failed, clearing local session anyway", "err", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked(ctx)
	m.setStateLocked(Unauthenticated, nil)
	m.logger.Info("logged out")
	return nil
}

// Refresh mints a new access token from the refresh cookie and installs it.
//
// On failure the local token is cleared and an error wrapping [shared.ErrRefreshFailed]
// is returned; an Authenticated session becomes Unauthenticated. Results that arrive after
// the session changed are dropped with [shared.ErrStaleResponse].
//
// Concurrent calls share one request to token/refresh/, so a backend that rotates the
// refresh cookie never sees the old cookie twice. Each caller still returns when its own
// ctx is done.
func (m *Manager) Refresh(ctx context.Context) error {
	ch := m.refreshes.DoChan("refresh", func() (any, error) {
		return nil, m.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	epoch := m.currentEpoch()

	token, err := m.api.Refresh(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		m.logger.Debug("dropping stale refresh response", "started", epoch, "current", m.epoch)
		return shared.ErrStaleResponse
	}

	if err != nil {
		m.clearLocked(ctx)
		if m.state == Authenticated {
			m.setStateLocked(Unauthenticated, nil)
		} else {
			m.user = nil
		}
		if !errors.Is(err, shared.ErrRefreshFailed) {
			err = fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
		}
		return err
	}

	return m.installLocked(ctx, token)
}

// FetchIdentity resolves the identity for the installed token, refreshing once on 401.
func (m *Manager) FetchIdentity(ctx context.Context) error {
	return m.fetchIdentity(ctx, true)
}

// fetchIdentity calls me/. A 401 triggers one refresh and one retry when allowRefresh is set.
// Other failures settle Unauthenticated but keep the token, since they say nothing about it.
func (m *Manager) fetchIdentity(ctx context.Context, allowRefresh bool) error {
	epoch := m.currentEpoch()

	user, err := m.api.Me(ctx)
	if err != nil && allowRefresh && isUnauthorized(err) {
		if m.currentEpoch() != epoch {
			return shared.ErrStaleResponse
		}
		m.logger.Debug("access token rejected, refreshing")
		if rerr := m.Refresh(ctx); rerr != nil {
			return rerr
		}
		return m.fetchIdentity(ctx, false)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		return shared.ErrStaleResponse
	}

	if err != nil {
		m.setStateLocked(Unauthenticated, nil)
		return err
	}
	m.setStateLocked(Authenticated, user)
	return nil
}
