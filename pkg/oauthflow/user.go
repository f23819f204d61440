package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/DuckOriDuck/whaleray/internal/db"
)

// User is a WhaleRay account, one row per distinct GitHub login.
type User struct {
	ID          string
	GitHubLogin string
	CreatedAt   time.Time
}

// UserStore persists User rows.
type UserStore struct {
	db db.DBTX
}

// NewUserStore creates a UserStore.
func NewUserStore(dbtx db.DBTX) *UserStore {
	return &UserStore{db: dbtx}
}

// FindOrCreate resolves a GitHub login to a user row, creating one on first
// sign-in the way the teacher's OIDC flow creates a user row on first login
// (internal/auth/oidc_flow.go findOrCreateUser).
func (s *UserStore) FindOrCreate(ctx context.Context, githubLogin string) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT id, github_login, created_at FROM users WHERE github_login = $1`, githubLogin)
	u, err := scanUser(row)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("looking up user %s: %w", githubLogin, err)
	}

	id := uuid.NewString()
	if _, err := s.db.Exec(ctx, `
		INSERT INTO users (id, github_login)
		VALUES ($1, $2)
		ON CONFLICT (github_login) DO NOTHING
	`, id, githubLogin); err != nil {
		return nil, fmt.Errorf("creating user %s: %w", githubLogin, err)
	}

	row = s.db.QueryRow(ctx, `SELECT id, github_login, created_at FROM users WHERE github_login = $1`, githubLogin)
	u, err = scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("reloading user %s after create: %w", githubLogin, err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.GitHubLogin, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
