package clubauth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// LoginStatus is the tri-state login flag. The third "unknown" state lets
// screens distinguish "still checking persisted storage" from "definitely
// logged out" and avoid a premature redirect to the login screen.
type LoginStatus string

const (
	LoginStatusUnknown   LoginStatus = "unknown"
	LoginStatusLoggedOut LoginStatus = "logged_out"
	LoginStatusLoggedIn  LoginStatus = "logged_in"
)

// SessionSnapshot is an immutable view of the session, delivered to
// subscribers after every mutation.
type SessionSnapshot struct {
	Status       LoginStatus
	AccessToken  string
	RefreshToken string
	Details      *UserDetails
	Roles        []RoleAssignment
	CurrentRole  UserRole
	Categories   []string
	Club         *Club
	Epoch        uuid.UUID
}

// SessionState is the single owner of the user's login state. All mutations
// funnel through its named operations; other components treat it as
// read-mostly and never write token or role fields directly.
type SessionState struct {
	mu          sync.RWMutex
	status      LoginStatus
	access      string
	refresh     string
	details     *UserDetails
	roles       []RoleAssignment
	currentRole UserRole
	categories  []string
	club        *Club
	epoch       uuid.UUID

	store  Store
	logger Logger
	sink   ActivitySink

	subMu   sync.Mutex
	subs    map[int]func(SessionSnapshot)
	nextSub int
}

// SessionStateOption customizes SessionState construction.
type SessionStateOption func(*SessionState)

// WithStateLogger overrides the default logger.
func WithStateLogger(logger Logger) SessionStateOption {
	return func(s *SessionState) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStateActivitySink sets the ActivitySink used to publish session events.
func WithStateActivitySink(sink ActivitySink) SessionStateOption {
	return func(s *SessionState) {
		s.sink = normalizeActivitySink(sink)
	}
}

// NewSessionState returns a session in LoginStatusUnknown backed by the given
// store. A nil store falls back to an in-memory one.
func NewSessionState(store Store, opts ...SessionStateOption) *SessionState {
	if store == nil {
		store = NewMemoryStore()
	}
	s := &SessionState{
		status: LoginStatusUnknown,
		epoch:  uuid.New(),
		store:  store,
		logger: defLogger{},
		sink:   noopActivitySink{},
		subs:   map[int]func(SessionSnapshot){},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Hydrate loads the persisted tokens at cold start. With both tokens present
// the status stays unknown until a profile check resolves it; with either
// missing the session is definitely logged out. Calling it after the status
// has resolved is a no-op.
func (s *SessionState) Hydrate(ctx context.Context) {
	s.mu.Lock()
	if s.status != LoginStatusUnknown {
		s.mu.Unlock()
		return
	}

	access, okA := s.store.Load(ctx, StoreKeyAccess)
	refresh, okR := s.store.Load(ctx, StoreKeyRefresh)
	if okA && okR && access != "" && refresh != "" {
		s.access = access
		s.refresh = refresh
		if raw, ok := s.store.Load(ctx, StoreKeyProfile); ok {
			s.restoreProfileSnapshot(raw)
		}
	} else {
		s.status = LoginStatusLoggedOut
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Login sets the whole session from a successful login exchange or a full
// profile refresh, persists the tokens, and marks the session logged in.
func (s *SessionState) Login(ctx context.Context, access, refresh string, profile *Profile) error {
	if access == "" || refresh == "" {
		return errors.New("login requires both access and refresh tokens", errors.CategoryBadInput)
	}

	s.mu.Lock()
	s.status = LoginStatusLoggedIn
	s.access = access
	s.refresh = refresh
	s.epoch = uuid.New()
	s.applyProfileLocked(profile)
	userID := s.userIDLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, StoreKeyAccess, access)
	s.persist(ctx, StoreKeyRefresh, refresh)
	s.persistProfileSnapshot(ctx, profile)

	s.emit(ctx, ActivityEventLoginSuccess, userID, nil)
	s.notify(snap)
	return nil
}

// Logout clears every field and wipes the persisted tokens. It is idempotent:
// the transition to logged out happens exactly once, no matter how many
// callers race into it.
func (s *SessionState) Logout(ctx context.Context) {
	s.mu.Lock()
	if s.status == LoginStatusLoggedOut {
		s.mu.Unlock()
		return
	}
	userID := s.userIDLocked()
	s.status = LoginStatusLoggedOut
	s.access = ""
	s.refresh = ""
	s.details = nil
	s.roles = nil
	s.currentRole = ""
	s.categories = nil
	s.club = nil
	s.epoch = uuid.New()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	for _, key := range []string{StoreKeyAccess, StoreKeyRefresh, StoreKeyProfile} {
		if err := s.store.Remove(ctx, key); err != nil {
			s.logger.Warn("failed to remove persisted session key %s: %v", key, err)
		}
	}

	s.emit(ctx, ActivityEventLogout, userID, nil)
	s.notify(snap)
}

// SetCurrentRole updates only the active-role pointer. The selection lives in
// memory; it is recomputed from the server on the next profile fetch after a
// restart.
func (s *SessionState) SetCurrentRole(ctx context.Context, role UserRole) {
	s.mu.Lock()
	s.currentRole = role
	userID := s.userIDLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(ctx, ActivityEventRoleChanged, userID, map[string]any{"role": string(role)})
	s.notify(snap)
}

// SetRoles replaces the role set wholesale. An empty set is a valid state for
// a newly registered user awaiting approval. A current role that is no longer
// held is cleared.
func (s *SessionState) SetRoles(ctx context.Context, roles []RoleAssignment) {
	s.mu.Lock()
	s.roles = append([]RoleAssignment(nil), roles...)
	if s.currentRole != "" && !s.holdsLocked(s.currentRole) {
		s.currentRole = ""
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// SetCategories replaces the assigned category labels wholesale.
func (s *SessionState) SetCategories(ctx context.Context, categories []string) {
	s.mu.Lock()
	s.categories = append([]string(nil), categories...)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// SetClub replaces the club affiliation.
func (s *SessionState) SetClub(ctx context.Context, club *Club) {
	s.mu.Lock()
	if club == nil {
		s.club = nil
	} else {
		c := *club
		s.club = &c
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// SetDetails replaces the user details wholesale.
func (s *SessionState) SetDetails(ctx context.Context, details *UserDetails) {
	s.mu.Lock()
	if details == nil {
		s.details = nil
	} else {
		d := *details
		s.details = &d
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// ApplyProfile replaces details, roles, categories, and club from a fresh
// profile fetch in one step.
func (s *SessionState) ApplyProfile(ctx context.Context, profile *Profile) {
	s.mu.Lock()
	s.applyProfileLocked(profile)
	userID := s.userIDLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistProfileSnapshot(ctx, profile)
	s.emit(ctx, ActivityEventProfileUpdated, userID, nil)
	s.notify(snap)
}

// ApplyAccessToken installs a refreshed access token. The epoch must match
// the session that initiated the refresh: a refresh resolving after a logout
// (or after a new login) is stale and must not resurrect the cleared session.
// It reports whether the token was applied.
func (s *SessionState) ApplyAccessToken(ctx context.Context, token string, epoch uuid.UUID) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	if s.status == LoginStatusLoggedOut || s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.access = token
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, StoreKeyAccess, token)
	s.notify(snap)
	return true
}

// Subscribe registers fn to receive a snapshot after every mutation. The
// returned func unregisters it; it is safe to call more than once.
func (s *SessionState) Subscribe(fn func(SessionSnapshot)) func() {
	if fn == nil {
		return func() {}
	}

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Status returns the tri-state login flag.
func (s *SessionState) Status() LoginStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// AccessToken returns the current access token, empty when logged out.
func (s *SessionState) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// RefreshToken returns the current refresh token, empty when logged out.
func (s *SessionState) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// Epoch identifies the current session instance. It changes on every login
// and logout.
func (s *SessionState) Epoch() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// CurrentRole returns the active role, empty when none is selected.
func (s *SessionState) CurrentRole() UserRole {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRole
}

// Roles returns a copy of the held role assignments.
func (s *SessionState) Roles() []RoleAssignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RoleAssignment(nil), s.roles...)
}

// Details returns a copy of the user details, nil when unknown.
func (s *SessionState) Details() *UserDetails {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.details == nil {
		return nil
	}
	d := *s.details
	return &d
}

// Snapshot returns a consistent view of the whole session.
func (s *SessionState) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *SessionState) applyProfileLocked(profile *Profile) {
	if profile == nil {
		s.details = nil
		s.roles = nil
		s.categories = nil
		s.club = nil
		return
	}
	d := profile.UserDetails
	s.details = &d
	s.roles = append([]RoleAssignment(nil), profile.Roles...)
	s.categories = append([]string(nil), profile.AssignedCategories...)
	if profile.Club != nil {
		c := *profile.Club
		s.club = &c
	} else {
		s.club = nil
	}
	if s.currentRole != "" && !s.holdsLocked(s.currentRole) {
		s.currentRole = ""
	}
}

func (s *SessionState) holdsLocked(role UserRole) bool {
	for _, a := range s.roles {
		if a.Role == role {
			return true
		}
	}
	return false
}

func (s *SessionState) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{
		Status:       s.status,
		AccessToken:  s.access,
		RefreshToken: s.refresh,
		Roles:        append([]RoleAssignment(nil), s.roles...),
		CurrentRole:  s.currentRole,
		Categories:   append([]string(nil), s.categories...),
		Epoch:        s.epoch,
	}
	if s.details != nil {
		d := *s.details
		snap.Details = &d
	}
	if s.club != nil {
		c := *s.club
		snap.Club = &c
	}
	return snap
}

func (s *SessionState) userIDLocked() string {
	if s.details == nil {
		return ""
	}
	return s.details.Username
}

func (s *SessionState) persist(ctx context.Context, key, value string) {
	if err := s.store.Save(ctx, key, value); err != nil {
		s.logger.Warn("failed to persist session key %s: %v", key, err)
	}
}

func (s *SessionState) persistProfileSnapshot(ctx context.Context, profile *Profile) {
	if profile == nil {
		return
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		s.logger.Warn("failed to encode profile snapshot: %v", err)
		return
	}
	s.persist(ctx, StoreKeyProfile, string(raw))
}

// restoreProfileSnapshot hydrates profile fields for instant cold-start
// rendering. Decode errors are ignored: the snapshot is a cache, the server
// remains the source of truth.
func (s *SessionState) restoreProfileSnapshot(raw string) {
	profile := new(Profile)
	if err := json.Unmarshal([]byte(raw), profile); err != nil {
		s.logger.Debug("ignoring invalid profile snapshot: %v", err)
		return
	}
	s.applyProfileLocked(profile)
}

func (s *SessionState) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := normalizeActivitySink(s.sink).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *SessionState) notify(snap SessionSnapshot) {
	s.subMu.Lock()
	fns := make([]func(SessionSnapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
