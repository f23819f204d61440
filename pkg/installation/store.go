package installation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/DuckOriDuck/whaleray/internal/db"
)

// ErrNotFound is returned when an installation row does not exist.
var ErrNotFound = errors.New("installation not found")

// Store persists Installation rows.
type Store struct {
	db db.DBTX
}

// NewStore creates a Store.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// Create inserts a new installation row, or updates the account login if a
// row with the same installation id already exists, so writing the same
// installation twice is not an error.
func (s *Store) Create(ctx context.Context, inst Installation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO installations (installation_id, user_id, account_login)
		VALUES ($1, $2, $3)
		ON CONFLICT (installation_id) DO UPDATE SET account_login = EXCLUDED.account_login
	`, inst.InstallationID, inst.UserID, inst.AccountLogin)
	if err != nil {
		return fmt.Errorf("creating installation: %w", err)
	}
	return nil
}

// ListByUser returns every installation granted to userId (the GSI-on-userId
// of spec §6).
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Installation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT installation_id, user_id, account_login, created_at
		FROM installations
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing installations: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// GetByUserAndAccountLogin selects the installation whose accountLogin
// matches owner, the lookup Request Intake (§4.3) performs.
func (s *Store) GetByUserAndAccountLogin(ctx context.Context, userID, accountLogin string) (*Installation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT installation_id, user_id, account_login, created_at
		FROM installations
		WHERE user_id = $1 AND account_login = $2
	`, userID, accountLogin)

	inst, err := scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting installation: %w", err)
	}
	return inst, nil
}

// Delete evicts an installation row — invariant 5: upon 401/404 on token
// use, the row is eligible for removal.
func (s *Store) Delete(ctx context.Context, installationID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM installations WHERE installation_id = $1`, installationID)
	if err != nil {
		return fmt.Errorf("deleting installation: %w", err)
	}
	return nil
}

func scanRow(row pgx.Row) (*Installation, error) {
	var inst Installation
	if err := row.Scan(&inst.InstallationID, &inst.UserID, &inst.AccountLogin, &inst.CreatedAt); err != nil {
		return nil, err
	}
	return &inst, nil
}

func scanRows(rows pgx.Rows) ([]Installation, error) {
	var out []Installation
	for rows.Next() {
		var inst Installation
		if err := rows.Scan(&inst.InstallationID, &inst.UserID, &inst.AccountLogin, &inst.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning installation row: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating installation rows: %w", err)
	}
	return out, nil
}
