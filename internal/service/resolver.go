package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campusid/shibgate/internal/data"
	"github.com/campusid/shibgate/internal/domain/model"
	"github.com/campusid/shibgate/internal/ports"
)

// UserResolverOptions groups dependencies for UserResolver.
type UserResolverOptions struct {
	Users   ports.UserStore
	Hooks   ports.Hooks
	Metrics *AuthMetrics
	Logger  *slog.Logger
}

// UserResolver turns a trusted remote username plus attribute-derived
// profile fields into a persisted user record. It is idempotent: repeated
// resolutions for the same username converge on a single record, and
// correctness under concurrent first-sight requests is delegated to the
// store's atomic find-or-create primitive.
type UserResolver struct {
	users   ports.UserStore
	hooks   ports.Hooks
	metrics *AuthMetrics
	logger  *slog.Logger
}

// NewUserResolver constructs a new UserResolver.
func NewUserResolver(opts UserResolverOptions) *UserResolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UserResolver{
		users:   opts.Users,
		hooks:   opts.Hooks,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Resolve returns the user record for username, creating it when allowCreate
// is set. A miss with creation disabled is a normal outcome and returns
// (nil, nil); only storage failures produce an error.
//
// On every resolution the supplied fields are reconciled against the record:
// if at least one differs all are applied in a single write, if none differ
// no write happens. This corrects profile drift from the identity source on
// each login.
func (r *UserResolver) Resolve(ctx context.Context, username string, fields model.ProfileFields, allowCreate bool) (*model.User, error) {
	if username == "" {
		return nil, nil
	}
	start := time.Now()
	defer r.metrics.ObserveResolve(start)

	user, err := r.lookup(ctx, username, fields, allowCreate)
	if err != nil || user == nil {
		return nil, err
	}

	if !fields.IsZero() && fields.Differs(user) {
		fields.Apply(user)
		if updateErr := r.users.UpdateProfile(ctx, user); updateErr != nil {
			return nil, fmt.Errorf("reconcile user fields: %w", updateErr)
		}
	}

	return user, nil
}

func (r *UserResolver) lookup(ctx context.Context, username string, fields model.ProfileFields, allowCreate bool) (*model.User, error) {
	if !allowCreate {
		user, err := r.users.FindByUsername(ctx, username)
		if errors.Is(err, data.ErrUserNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find user: %w", err)
		}
		return user, nil
	}

	user, created, err := r.users.FindOrCreate(ctx, username, fields)
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}
	if created {
		r.metrics.RecordUserCreated()
		r.logger.InfoContext(ctx, "provisioned user on first sight", "username", username)
		if r.hooks.UserCreated != nil {
			if hookErr := r.hooks.UserCreated(ctx, user); hookErr != nil {
				return nil, fmt.Errorf("user created hook: %w", hookErr)
			}
		}
	}
	return user, nil
}
