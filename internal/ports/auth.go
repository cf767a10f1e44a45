package ports

// Package ports defines interfaces (hexagonal ports) for auth-related
// behavior. Implementations live in internal/adapters and internal/data;
// orchestration in internal/service.

import (
	"context"

	domainauth "github.com/campusid/shibgate/internal/domain/auth"
	"github.com/campusid/shibgate/internal/domain/model"
)

// SessionStore persists and retrieves browser sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// UserStore persists user records. Implementations must make FindOrCreate
// atomic: concurrent calls for the same unseen username create exactly one
// record and all callers converge on it.
type UserStore interface {
	// FindByUsername returns the user or data.ErrUserNotFound.
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindOrCreate returns the existing user for username or creates one
	// seeded with defaults. The bool reports whether a record was created
	// by this call.
	FindOrCreate(ctx context.Context, username string, defaults model.ProfileFields) (*model.User, bool, error)

	// UpdateProfile persists the user's current profile field values.
	UpdateProfile(ctx context.Context, user *model.User) error
}

// Hooks are overridable extension points invoked by the auth flow. All are
// optional; a nil hook is skipped. Hook failures are logged, never rolled
// back into the session writes that preceded them.
type Hooks struct {
	// UserCreated runs once, immediately after a user record is first
	// created. It may mutate the record before it is returned to the flow.
	UserCreated func(ctx context.Context, user *model.User) error

	// PostLoginProfile runs after every successful login with the parsed
	// attribute set.
	PostLoginProfile func(ctx context.Context, user *model.User, attrs map[string]string) error

	// SetupSession runs last, after the session is bound to the identity.
	SetupSession func(ctx context.Context, sess *domainauth.Session) error
}
