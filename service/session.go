package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"storefront/api"
	"storefront/metrics"
	models "storefront/model"
	"storefront/store"
)

// SessionListener is notified with the latest session after a change.
type SessionListener func(models.Session)

// SessionManager owns the authentication state. All reads go through
// Snapshot; all writes go through its methods.
type SessionManager struct {
	auth  AuthAPI
	store store.CredentialStore
	log   logrus.FieldLogger

	group singleflight.Group

	mu          sync.Mutex
	state       models.Session
	epoch       uint64
	initialized bool
	initErr     error

	version    uint64
	delivered  uint64
	publishing bool
	listeners  map[int]SessionListener
	nextID     int
}

// NewSessionManager returns an Uninitialized session manager.
func NewSessionManager(auth AuthAPI, st store.CredentialStore, log logrus.FieldLogger) *SessionManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SessionManager{
		auth:      auth,
		store:     st,
		log:       log.WithField("component", "session"),
		state:     models.Session{Status: models.StatusUninitialized},
		listeners: map[int]SessionListener{},
	}
}

// Snapshot returns a copy of the current session.
func (m *SessionManager) Snapshot() models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *SessionManager) snapshotLocked() models.Session {
	s := m.state
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Subscribe registers fn and returns a function that removes it.
func (m *SessionManager) Subscribe(fn SessionListener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// setLocked replaces the state and bumps the version. m.mu must be held.
func (m *SessionManager) setLocked(s models.Session) {
	prev := m.state.Status
	m.state = s
	m.version++
	if prev != s.Status {
		metrics.RecordSessionStatus(s.Status.String())
		m.log.WithFields(logrus.Fields{"from": prev, "status": s.Status}).Info("session status changed")
	}
}

// publish delivers the latest state to listeners. Only one goroutine
// delivers at a time; a change made while delivering (including one made
// by a listener) is picked up by the next loop iteration.
func (m *SessionManager) publish() {
	m.mu.Lock()
	if m.publishing {
		m.mu.Unlock()
		return
	}
	m.publishing = true
	for m.delivered != m.version {
		v := m.version
		snap := m.snapshotLocked()
		listeners := make([]SessionListener, 0, len(m.listeners))
		for id := 0; id < m.nextID; id++ {
			if fn, ok := m.listeners[id]; ok {
				listeners = append(listeners, fn)
			}
		}
		m.mu.Unlock()
		for _, fn := range listeners {
			fn(snap)
		}
		m.mu.Lock()
		m.delivered = v
	}
	m.publishing = false
	m.mu.Unlock()
}

// Initialize restores a persisted session. It runs at most once per
// manager; concurrent callers share the in-flight attempt and later
// callers get its result.
func (m *SessionManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		err := m.initErr
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	_, err, _ := m.group.Do("initialize", func() (any, error) {
		return nil, m.initialize(ctx)
	})
	return err
}

func (m *SessionManager) initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return m.initErr
	}
	epoch := m.epoch
	if m.state.Status == models.StatusUninitialized {
		m.setLocked(models.Session{Status: models.StatusLoading})
	}
	m.mu.Unlock()
	m.publish()

	creds, err := m.store.Load(ctx)
	if err != nil {
		m.log.WithError(err).Warn("load credentials")
		creds = models.Credentials{}
	}

	var profile models.Profile
	if !creds.Empty() {
		profile, err = m.auth.Profile(api.WithAccessToken(ctx, creds.Access))
	}

	m.mu.Lock()
	m.initialized = true
	switch {
	case epoch != m.epoch:
		// a logout or login landed first; its state wins
		m.log.Debug("discarding stale initialize result")
	case creds.Empty():
		m.setLocked(models.Session{Status: models.StatusAnonymous})
	case err != nil:
		m.log.WithError(err).Warn("persisted session rejected")
		m.clearStoreLocked()
		m.setLocked(models.Session{Status: models.StatusAnonymous})
	default:
		m.setLocked(models.Session{
			AccessToken:  creds.Access,
			RefreshToken: creds.Refresh,
			User:         &profile,
			Status:       models.StatusAuthenticated,
		})
	}
	m.mu.Unlock()
	m.publish()
	return nil
}

// Login exchanges credentials for tokens, verifies them with a profile
// fetch and persists them. On failure the prior state is left untouched.
func (m *SessionManager) Login(ctx context.Context, req models.LoginRequest) (models.Session, error) {
	if err := validateStruct(req); err != nil {
		return models.Session{}, err
	}

	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	creds, err := m.auth.Login(ctx, req)
	if err != nil {
		return models.Session{}, fmt.Errorf("login: %w", err)
	}
	profile, err := m.auth.Profile(api.WithAccessToken(ctx, creds.Access))
	if err != nil {
		return models.Session{}, fmt.Errorf("load profile: %w", err)
	}

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return models.Session{}, ErrSessionChanged
	}
	if err := m.store.Save(ctx, creds); err != nil {
		m.mu.Unlock()
		return models.Session{}, fmt.Errorf("persist credentials: %w", err)
	}
	m.epoch++
	epoch = m.epoch
	m.initialized = true
	m.setLocked(models.Session{
		AccessToken:  creds.Access,
		RefreshToken: creds.Refresh,
		User:         &profile,
		Status:       models.StatusAuthenticated,
	})
	m.mu.Unlock()
	m.publish()

	// a listener may have expired the new session (a 401 on the cart load)
	m.mu.Lock()
	snap := m.snapshotLocked()
	changed := epoch != m.epoch
	m.mu.Unlock()
	if changed {
		m.log.WithField("username", profile.Username).Warn("session ended during login")
		return models.Session{}, ErrSessionChanged
	}

	m.log.WithField("username", profile.Username).Info("logged in")
	return snap, nil
}

// Register creates an account. It never logs in.
func (m *SessionManager) Register(ctx context.Context, req models.RegisterRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if err := m.auth.Register(ctx, req); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// Logout clears the persisted tokens and resets to Anonymous. It never
// fails; results of requests still in flight are discarded.
func (m *SessionManager) Logout() {
	m.reset("logout")
}

// Expire drops a session the backend no longer accepts.
func (m *SessionManager) Expire(reason string) {
	m.log.WithField("reason", reason).Warn("session expired")
	m.reset(reason)
}

func (m *SessionManager) reset(reason string) {
	m.mu.Lock()
	m.epoch++
	m.clearStoreLocked()
	m.setLocked(models.Session{Status: models.StatusAnonymous})
	m.mu.Unlock()
	m.publish()
	m.log.WithField("reason", reason).Debug("session reset")
}

func (m *SessionManager) clearStoreLocked() {
	// independent of any request context so a canceled caller cannot
	// leave tokens behind
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Clear(ctx); err != nil {
		m.log.WithError(err).Error("clear credentials")
	}
}

// HandleError expires the session when err is an authentication failure
// for the token that is still current. It reports whether err was an
// authentication failure.
func (m *SessionManager) HandleError(token string, err error) bool {
	if !api.IsAuthentication(err) {
		return false
	}
	m.mu.Lock()
	current := m.state.Status == models.StatusAuthenticated && m.state.AccessToken == token
	m.mu.Unlock()
	if current {
		m.Expire("backend rejected access token")
	}
	return true
}

// authorized returns the current session and a context carrying its
// access token, or ErrUnauthenticated.
func (m *SessionManager) authorized(ctx context.Context) (context.Context, models.Session, error) {
	s := m.Snapshot()
	if !s.Authenticated() {
		return ctx, s, ErrUnauthenticated
	}
	return api.WithAccessToken(ctx, s.AccessToken), s, nil
}

// UpdateProfile writes the profile and stores the backend's copy.
func (m *SessionManager) UpdateProfile(ctx context.Context, req models.ProfileUpdate) (models.Profile, error) {
	ctx, s, err := m.authorized(ctx)
	if err != nil {
		return models.Profile{}, err
	}
	if err := validateStruct(req); err != nil {
		return models.Profile{}, err
	}
	p, err := m.auth.UpdateProfile(ctx, req)
	if err != nil {
		m.HandleError(s.AccessToken, err)
		return models.Profile{}, fmt.Errorf("update profile: %w", err)
	}

	m.mu.Lock()
	if m.state.Authenticated() && m.state.AccessToken == s.AccessToken {
		next := m.state
		// counters are not part of the update payload
		if p.Points == 0 && p.LoginStreak == 0 && p.InkBottleReturns == 0 {
			p.Points = next.User.Points
			p.LoginStreak = next.User.LoginStreak
			p.InkBottleReturns = next.User.InkBottleReturns
		}
		next.User = &p
		m.setLocked(next)
	}
	m.mu.Unlock()
	m.publish()
	return p, nil
}

// ChangePassword changes the password of the signed-in user.
func (m *SessionManager) ChangePassword(ctx context.Context, req models.PasswordChange) error {
	ctx, s, err := m.authorized(ctx)
	if err != nil {
		return err
	}
	if err := validateStruct(req); err != nil {
		return err
	}
	if err := m.auth.ChangePassword(ctx, req); err != nil {
		m.HandleError(s.AccessToken, err)
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

// Refresh exchanges the refresh token for a new pair. It is never run on
// a timer; callers decide when to use it (see NeedsRefresh).
func (m *SessionManager) Refresh(ctx context.Context) (models.Session, error) {
	m.mu.Lock()
	s := m.snapshotLocked()
	epoch := m.epoch
	m.mu.Unlock()
	if !s.Authenticated() || s.RefreshToken == "" {
		return models.Session{}, ErrUnauthenticated
	}

	creds, err := m.auth.RefreshToken(ctx, s.RefreshToken)
	if err != nil {
		if api.IsAuthentication(err) {
			m.mu.Lock()
			stale := epoch != m.epoch
			m.mu.Unlock()
			if !stale {
				m.Expire("refresh token rejected")
			}
		}
		return models.Session{}, fmt.Errorf("refresh: %w", err)
	}

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return models.Session{}, ErrSessionChanged
	}
	if err := m.store.Save(ctx, creds); err != nil {
		m.mu.Unlock()
		return models.Session{}, fmt.Errorf("persist credentials: %w", err)
	}
	next := m.state
	next.AccessToken = creds.Access
	next.RefreshToken = creds.Refresh
	m.setLocked(next)
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.publish()
	return snap, nil
}

// AccessTokenExpiry returns the exp claim of the current access token.
func (m *SessionManager) AccessTokenExpiry() (time.Time, error) {
	s := m.Snapshot()
	if s.AccessToken == "" {
		return time.Time{}, ErrUnauthenticated
	}
	return tokenExpiry(s.AccessToken)
}

// NeedsRefresh reports whether the access token expires within window.
// Tokens without a readable expiry never need a refresh.
func (m *SessionManager) NeedsRefresh(window time.Duration) bool {
	exp, err := m.AccessTokenExpiry()
	if err != nil {
		return false
	}
	return time.Until(exp) <= window
}
