package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/campusid/shibgate/internal/data/pgxutil"
	"github.com/campusid/shibgate/internal/domain/model"
)

// ErrUserNotFound is returned when a user lookup matches no record.
var ErrUserNotFound = errors.New("user not found")

// UserRepo provides database operations for user records.
type UserRepo struct {
	DB *sql.DB
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

const userColumns = `id, username, email, first_name, last_name, status, affiliation,
		       password_unusable, active, created_at, updated_at`

const userGetByUsernameQuery = `
	SELECT ` + userColumns + `
	FROM users
	WHERE username = $1`

// FindByUsername retrieves a user by its unique username.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, userGetByUsernameQuery, username)
		if err != nil {
			return err
		}
		defer rows.Close()
		user, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return &user, nil
}

// FindOrCreate returns the user for username, creating it with the given
// profile defaults when absent. The insert races safely: if a concurrent
// request creates the row first, the unique violation is absorbed and the
// existing row is returned, so exactly one record ever exists per username.
// New records are created with the password-unusable marker set; they can
// never satisfy a local credential login.
func (r *UserRepo) FindOrCreate(ctx context.Context, username string, defaults model.ProfileFields) (*model.User, bool, error) {
	if existing, err := r.FindByUsername(ctx, username); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	seed := model.User{Username: username}
	defaults.Apply(&seed)

	var user model.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO users (username, email, first_name, last_name, status, affiliation, password_unusable)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			RETURNING `+userColumns,
			seed.Username, seed.Email, seed.FirstName, seed.LastName, seed.Status, seed.Affiliation,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		user, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
		return err
	})
	if err == nil {
		return &user, true, nil
	}

	// Lost the create race: another request inserted the row between our
	// lookup and insert. Converge on the winner's record.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		existing, findErr := r.FindByUsername(ctx, username)
		if findErr != nil {
			return nil, false, fmt.Errorf("find user after create race: %w", findErr)
		}
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("failed to create user: %w", err)
}

// UpdateProfile persists the user's current profile field values and bumps
// updated_at.
func (r *UserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	if user == nil || user.ID == "" {
		return errors.New("user with ID is required")
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `
			UPDATE users
			SET email = $2, first_name = $3, last_name = $4, status = $5, affiliation = $6,
			    active = $7, updated_at = now()
			WHERE id = $1`,
			user.ID, user.Email, user.FirstName, user.LastName, user.Status, user.Affiliation, user.Active,
		)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return nil
}
