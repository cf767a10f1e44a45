package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"sync"

	domainauth "github.com/campusid/shibgate/internal/domain/auth"
	"github.com/campusid/shibgate/internal/data"
	"github.com/campusid/shibgate/internal/domain/model"
	"github.com/campusid/shibgate/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.SessionStore = (*MemorySessionStore)(nil)
	_ ports.UserStore    = (*MemoryUserStore)(nil)
)

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session

	// SaveCount tracks writes so tests can assert on no-write paths.
	SaveCount int
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session)}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	m.SaveCount++
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	if id == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Stored returns a copy of the session by ID for assertions.
func (m *MemorySessionStore) Stored(id string) (domainauth.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ErrNotFound is returned by mocks when an entity is not present.
type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var ErrNotFound error = notFoundError{}

// MemoryUserStore is an in-memory user store for unit tests. Its
// FindOrCreate is atomic under an internal mutex, matching the contract
// real stores provide via unique constraints.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]*model.User
	seq   int

	// CreateCount and UpdateCount track writes so tests can assert on
	// exactly-once semantics.
	CreateCount int
	UpdateCount int
}

// NewMemoryUserStore creates a new in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*model.User)}
}

func (m *MemoryUserStore) FindByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, data.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryUserStore) FindOrCreate(_ context.Context, username string, defaults model.ProfileFields) (*model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[username]; ok {
		cp := *u
		return &cp, false, nil
	}
	m.seq++
	u := &model.User{
		ID:               itoa(m.seq),
		Username:         username,
		PasswordUnusable: true,
		Active:           true,
	}
	defaults.Apply(u)
	m.users[username] = u
	m.CreateCount++
	cp := *u
	return &cp, true, nil
}

func (m *MemoryUserStore) UpdateProfile(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.users[user.Username]
	if !ok {
		return data.ErrUserNotFound
	}
	cp := *user
	cp.ID = stored.ID
	m.users[user.Username] = &cp
	m.UpdateCount++
	return nil
}

// Put seeds a user directly, bypassing creation accounting.
func (m *MemoryUserStore) Put(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		m.seq++
		u.ID = itoa(m.seq)
	}
	cp := *u
	m.users[u.Username] = &cp
}

// Stored returns a copy of the stored user for assertions.
func (m *MemoryUserStore) Stored(username string) (*model.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
