package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/DuckOriDuck/whaleray/internal/db"
	"github.com/DuckOriDuck/whaleray/internal/telemetry"
)

// ErrNotFound is returned when a database row does not exist.
var ErrNotFound = errors.New("database not found")

// Store persists Database rows. A partial unique index on (user_id) WHERE
// db_state NOT IN ('FAILED') enforces invariant 6 (one live database per
// user) at the database layer; Store.Create relies on that constraint
// instead of a read-then-write check.
type Store struct {
	db db.DBTX
}

// NewStore creates a Store.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// Create inserts a new database row in CREATING state.
func (s *Store) Create(ctx context.Context, d Database) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO databases (database_id, user_id, db_state, username, password_param,
			availability_zone, subnet_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.DatabaseID, d.UserID, d.DBState, d.Username, d.PasswordParam, d.AvailabilityZone, d.SubnetID)
	if err != nil {
		return fmt.Errorf("creating database %s: %w", d.DatabaseID, err)
	}
	return nil
}

// GetByUserID fetches the (at most one) live database row for userID.
func (s *Store) GetByUserID(ctx context.Context, userID string) (*Database, error) {
	row := s.db.QueryRow(ctx, selectColumns+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, userID)
	dbRow, err := scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting database for user %s: %w", userID, err)
	}
	return dbRow, nil
}

// UpdateFields carries the optional service/task-definition coordinates
// produced by the controller's ECS calls; UpdateState applies the non-nil ones.
type UpdateFields struct {
	ServiceArn        *string
	ServiceRegistryID *string
	TaskDefinitionArn *string
	VolumeID          *string
}

// UpdateState transitions a database row's state, applying any supplied
// auxiliary fields via COALESCE — the same Status Mutator shape used for
// deployments (spec §4.1 analogue for the database side).
func (s *Store) UpdateState(ctx context.Context, databaseID string, state State, fields UpdateFields) error {
	_, err := s.db.Exec(ctx, `
		UPDATE databases SET
			db_state = $2,
			service_arn = COALESCE($3, service_arn),
			service_registry_id = COALESCE($4, service_registry_id),
			task_definition_arn = COALESCE($5, task_definition_arn),
			volume_id = COALESCE($6, volume_id),
			updated_at = now()
		WHERE database_id = $1
	`, databaseID, state, fields.ServiceArn, fields.ServiceRegistryID, fields.TaskDefinitionArn, fields.VolumeID)
	if err != nil {
		return fmt.Errorf("updating database %s state: %w", databaseID, err)
	}
	telemetry.DatabaseTransitionsTotal.WithLabelValues(string(state)).Inc()
	return nil
}

// Delete removes a database row.
func (s *Store) Delete(ctx context.Context, databaseID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM databases WHERE database_id = $1`, databaseID)
	if err != nil {
		return fmt.Errorf("deleting database %s: %w", databaseID, err)
	}
	return nil
}

const selectColumns = `
	SELECT database_id, user_id, db_state, username, COALESCE(password_param, ''),
		COALESCE(availability_zone, ''), COALESCE(subnet_id, ''),
		COALESCE(service_arn, ''), COALESCE(service_registry_id, ''),
		COALESCE(task_definition_arn, ''), COALESCE(volume_id, ''),
		created_at, updated_at
	FROM databases
`

func scanRow(row pgx.Row) (*Database, error) {
	var d Database
	if err := row.Scan(&d.DatabaseID, &d.UserID, &d.DBState, &d.Username, &d.PasswordParam,
		&d.AvailabilityZone, &d.SubnetID, &d.ServiceArn, &d.ServiceRegistryID,
		&d.TaskDefinitionArn, &d.VolumeID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
