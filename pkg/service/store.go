package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/DuckOriDuck/whaleray/internal/db"
)

// ErrNotFound is returned when a service row does not exist.
var ErrNotFound = errors.New("service not found")

// Store persists Service rows. It is written only by Intake (row creation)
// and the Deployer during supersession (spec §5 "Shared resources").
type Store struct {
	db db.DBTX
}

// NewStore creates a Store.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// EnsureExists creates the service row if it doesn't exist yet. Repeated
// calls for the same serviceID are no-ops.
func (s *Store) EnsureExists(ctx context.Context, serviceID, userID, serviceName string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO services (service_id, user_id, service_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (service_id) DO NOTHING
	`, serviceID, userID, serviceName)
	if err != nil {
		return fmt.Errorf("ensuring service %s exists: %w", serviceID, err)
	}
	return nil
}

// Get fetches a single service by id.
func (s *Store) Get(ctx context.Context, serviceID string) (*Service, error) {
	row := s.db.QueryRow(ctx, selectColumns+` WHERE service_id = $1`, serviceID)
	svc, err := scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting service %s: %w", serviceID, err)
	}
	return svc, nil
}

// ListByUser returns every service owned by userID.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Service, error) {
	rows, err := s.db.Query(ctx, selectColumns+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing services for user %s: %w", userID, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Supersede promotes newDeploymentID to active and returns the previous
// activeDeploymentId (empty if none), for the caller to mark SUPERSEDED via
// the deployments Status Mutator. This performs a plain read-then-write
// (spec §9 "Supersession race" — an implementation should upgrade to a
// conditional write comparing created_at; WhaleRay accepts the documented
// race and the "most recently observed RUNNING wins" rule, spec §5).
func (s *Store) Supersede(ctx context.Context, serviceID, userID, serviceName, newDeploymentID, serviceEndpoint string) (previousDeploymentID string, err error) {
	row := s.db.QueryRow(ctx, `SELECT COALESCE(active_deployment_id::text, '') FROM services WHERE service_id = $1`, serviceID)
	if err := row.Scan(&previousDeploymentID); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("reading prior active deployment for %s: %w", serviceID, err)
		}
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO services (service_id, user_id, service_name, active_deployment_id, service_endpoint)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (service_id) DO UPDATE SET
			active_deployment_id = EXCLUDED.active_deployment_id,
			service_endpoint = EXCLUDED.service_endpoint,
			updated_at = now()
	`, serviceID, userID, serviceName, newDeploymentID, serviceEndpoint)
	if err != nil {
		return "", fmt.Errorf("superseding service %s: %w", serviceID, err)
	}

	if previousDeploymentID == newDeploymentID {
		return "", nil
	}
	return previousDeploymentID, nil
}

const selectColumns = `
	SELECT service_id, user_id, service_name, COALESCE(active_deployment_id::text, ''),
		COALESCE(service_endpoint, ''), created_at, updated_at
	FROM services
`

func scanRow(row pgx.Row) (*Service, error) {
	var svc Service
	if err := row.Scan(&svc.ServiceID, &svc.UserID, &svc.ServiceName, &svc.ActiveDeploymentID,
		&svc.ServiceEndpoint, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
		return nil, err
	}
	return &svc, nil
}

func scanRows(rows pgx.Rows) ([]Service, error) {
	var out []Service
	for rows.Next() {
		svc, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning service row: %w", err)
		}
		out = append(out, *svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating service rows: %w", err)
	}
	return out, nil
}
