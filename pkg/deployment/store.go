package deployment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/DuckOriDuck/whaleray/internal/db"
	"github.com/DuckOriDuck/whaleray/internal/telemetry"
	"github.com/DuckOriDuck/whaleray/pkg/slack"
)

// ErrNotFound is returned when a deployment row does not exist.
var ErrNotFound = errors.New("deployment not found")

// Store is the Status Mutator (spec §4.1) plus the read paths every other
// component routes through. Every status transition made by a pipeline
// stage passes through UpdateStatus so auxiliary fields attach atomically to
// the transition that discovered them. The Orphan Sweeper (sweep) does not:
// it rewrites stale rows to *_TIMEOUT in one bulk UPDATE of its own, and
// claims and heartbeats update claimed_at/updated_at directly.
type Store struct {
	db                   db.DBTX
	orphanSweepThreshold time.Duration
	notifier             *slack.Notifier
}

// NewStore creates a Store. orphanSweepThreshold is the in-progress age
// after which a row is eligible for the Orphan Sweeper (spec §4.8,
// configurable per the design note that the original's 1800s was
// hard-coded).
func NewStore(dbtx db.DBTX, orphanSweepThreshold time.Duration) *Store {
	return &Store{db: dbtx, orphanSweepThreshold: orphanSweepThreshold}
}

// SetNotifier attaches the optional Slack notifier (SPEC_FULL.md §4
// "Deployment notifications"). Left nil, UpdateStatus and sweep simply skip
// notification.
func (s *Store) SetNotifier(n *slack.Notifier) {
	s.notifier = n
}

// Create inserts a new Deployment row with status INSPECTING. This write is
// itself the event that triggers the Inspector poller.
func (s *Store) Create(ctx context.Context, d *Deployment) error {
	if d.DeploymentID == "" {
		d.DeploymentID = uuid.NewString()
	}
	d.Status = StatusInspecting

	_, err := s.db.Exec(ctx, `
		INSERT INTO deployments (
			deployment_id, user_id, service_id, service_name, repository_full_name,
			branch, installation_id, env_file_content, is_reset, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, d.DeploymentID, d.UserID, d.ServiceID, d.ServiceName, d.RepositoryFullName,
		d.Branch, d.InstallationID, d.EnvFileContent, d.IsReset, d.Status)
	if err != nil {
		return fmt.Errorf("creating deployment: %w", err)
	}
	return nil
}

// UpdateFields carries the auxiliary columns a status transition may attach.
// Nil fields are left untouched (see UpdateStatus's use of COALESCE).
type UpdateFields struct {
	Framework          *string
	CodebuildProject   *string
	CodebuildLogGroup  *string
	CodebuildLogStream *string
	BuildID            *string
	TaskDefinitionArn  *string
	ECSService         *string
	Port               *int
	ErrorMessage       *string
}

// UpdateStatus is the Status Mutator (spec §4.1): a single conditional write
// setting status, updated_at, and every supplied extra field in one
// round-trip. Per §4.1's error policy, a failure here is logged by the
// caller and never allowed to mask the original pipeline error — this
// method only returns the error for the caller to log.
func (s *Store) UpdateStatus(ctx context.Context, deploymentID string, status Status, fields UpdateFields) error {
	row := s.db.QueryRow(ctx, `
		UPDATE deployments SET
			status = $2,
			updated_at = now(),
			framework = COALESCE($3, framework),
			codebuild_project = COALESCE($4, codebuild_project),
			codebuild_log_group = COALESCE($5, codebuild_log_group),
			codebuild_log_stream = COALESCE($6, codebuild_log_stream),
			build_id = COALESCE($7, build_id),
			task_definition_arn = COALESCE($8, task_definition_arn),
			ecs_service = COALESCE($9, ecs_service),
			port = COALESCE($10, port),
			error_message = COALESCE($11, error_message),
			claimed_at = NULL
		WHERE deployment_id = $1
		RETURNING service_name, COALESCE(error_message, '')
	`, deploymentID, status,
		fields.Framework, fields.CodebuildProject, fields.CodebuildLogGroup, fields.CodebuildLogStream,
		fields.BuildID, fields.TaskDefinitionArn, fields.ECSService, fields.Port, fields.ErrorMessage,
	)

	var serviceName, errorMessage string
	if err := row.Scan(&serviceName, &errorMessage); err != nil {
		return fmt.Errorf("updating deployment %s status: %w", deploymentID, err)
	}

	if status.IsTerminal() {
		telemetry.DeploymentsTotal.WithLabelValues(string(status)).Inc()
	}
	s.notify(ctx, deploymentID, serviceName, status, errorMessage)
	return nil
}

// notify posts a Slack message when status is a terminal one the
// deployment pipeline reaches: RUNNING or any *_FAIL/*_TIMEOUT.
func (s *Store) notify(ctx context.Context, deploymentID, serviceName string, status Status, errorMessage string) {
	if s.notifier == nil || !s.notifier.IsEnabled() {
		return
	}
	if status != StatusRunning && !isFailOrTimeout(status) {
		return
	}
	s.notifier.NotifyDeploymentStatus(ctx, slack.DeploymentEvent{
		DeploymentID: deploymentID,
		ServiceName:  serviceName,
		Status:       string(status),
		ErrorMessage: errorMessage,
	})
}

// RefreshHeartbeat bumps updated_at without changing status, used by
// in-progress stages on ExternalTransient retries so the sweep threshold
// measures true staleness, not merely slow progress (spec §7).
func (s *Store) RefreshHeartbeat(ctx context.Context, deploymentID string) error {
	_, err := s.db.Exec(ctx, `UPDATE deployments SET updated_at = now() WHERE deployment_id = $1`, deploymentID)
	if err != nil {
		return fmt.Errorf("refreshing heartbeat for %s: %w", deploymentID, err)
	}
	return nil
}

// Get fetches a single deployment by id.
func (s *Store) Get(ctx context.Context, deploymentID string) (*Deployment, error) {
	row := s.db.QueryRow(ctx, selectColumns+` WHERE deployment_id = $1`, deploymentID)
	d, err := scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment %s: %w", deploymentID, err)
	}
	return d, nil
}

// ListByUser returns the user's deployments, most recent first, after
// applying the Orphan Sweeper (spec §4.8) — "invoked on every listing".
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]Deployment, error) {
	if err := s.sweep(ctx, `WHERE user_id = $1`, userID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, selectColumns+`
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing deployments for user %s: %w", userID, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// ListByService returns a service's deployment history, most recent first
// (the supplemented per-service history feature, §6 of SPEC_FULL.md).
func (s *Store) ListByService(ctx context.Context, serviceID string, limit int) ([]Deployment, error) {
	if err := s.sweep(ctx, `WHERE service_id = $1`, serviceID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, selectColumns+`
		WHERE service_id = $1 ORDER BY created_at DESC LIMIT $2
	`, serviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing deployments for service %s: %w", serviceID, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// sweep rewrites in-progress rows matching whereClause that have gone stale
// to their <state>_TIMEOUT status. This is the Orphan Sweeper (spec §4.8):
// the only mechanism that closes leaked in-progress states when a pipeline
// worker crashes between stages.
func (s *Store) sweep(ctx context.Context, whereClause string, arg any) error {
	rows, err := s.db.Query(ctx, `
		UPDATE deployments SET
			status = status || '_TIMEOUT',
			updated_at = now(),
			error_message = COALESCE(error_message, 'orphan sweep: no progress within threshold'),
			claimed_at = NULL
		`+whereClause+`
		AND status IN ('INSPECTING', 'BUILDING', 'DEPLOYING')
		AND updated_at < now() - $2::interval
		RETURNING deployment_id, service_name, status, COALESCE(error_message, '')
	`, arg, s.orphanSweepThreshold.String())
	if err != nil {
		return fmt.Errorf("sweeping orphaned deployments: %w", err)
	}
	defer rows.Close()

	var n int
	for rows.Next() {
		var deploymentID, serviceName, errorMessage string
		var status Status
		if err := rows.Scan(&deploymentID, &serviceName, &status, &errorMessage); err != nil {
			return fmt.Errorf("scanning swept deployment row: %w", err)
		}
		n++
		telemetry.DeploymentsTotal.WithLabelValues(string(status)).Inc()
		s.notify(ctx, deploymentID, serviceName, status, errorMessage)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating swept deployment rows: %w", err)
	}

	if n > 0 {
		telemetry.OrphanSweepsTotal.Add(float64(n))
	}
	return nil
}

// ClaimInspecting claims up to limit rows in status INSPECTING with no
// active claim (or an expired one), for the InspectorWorker poller.
func (s *Store) ClaimInspecting(ctx context.Context, limit int) ([]Deployment, error) {
	return s.claim(ctx, StatusInspecting, limit)
}

// ClaimBuilding claims up to limit rows in status BUILDING with no active
// claim (or an expired one), for the BuildWorker poller. Rows are not
// filtered on build id; the BuildWorker skips rows that have none.
func (s *Store) ClaimBuilding(ctx context.Context, limit int) ([]Deployment, error) {
	return s.claim(ctx, StatusBuilding, limit)
}

func (s *Store) claim(ctx context.Context, status Status, limit int) ([]Deployment, error) {
	// One statement marks and returns the claimed rows, so two pollers
	// never claim the same row.
	rows, err := s.db.Query(ctx, `
		WITH claimed AS (
			UPDATE deployments SET claimed_at = now()
			WHERE deployment_id IN (
				SELECT deployment_id FROM deployments
				WHERE status = $1 AND (claimed_at IS NULL OR claimed_at < now() - interval '2 minutes')
				ORDER BY created_at ASC
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING deployment_id
		)`+selectColumns+`
		WHERE deployment_id IN (SELECT deployment_id FROM claimed)
		ORDER BY created_at ASC
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming %s deployments: %w", status, err)
	}
	defer rows.Close()

	claimed, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	return claimed, nil
}

func isFailOrTimeout(status Status) bool {
	s := string(status)
	return len(s) > 5 && s[len(s)-5:] == "_FAIL" || len(s) > 8 && s[len(s)-8:] == "_TIMEOUT"
}

const selectColumns = `
	SELECT deployment_id, user_id, service_id, service_name, repository_full_name,
		branch, installation_id, COALESCE(env_file_content, ''), is_reset, status,
		COALESCE(framework, ''), COALESCE(codebuild_project, ''), COALESCE(codebuild_log_group, ''),
		COALESCE(codebuild_log_stream, ''), COALESCE(build_id, ''), COALESCE(task_definition_arn, ''),
		COALESCE(ecs_service, ''), COALESCE(port, 0), COALESCE(error_message, ''),
		claimed_at, created_at, updated_at
	FROM deployments
`

func scanRow(row pgx.Row) (*Deployment, error) {
	var d Deployment
	if err := row.Scan(
		&d.DeploymentID, &d.UserID, &d.ServiceID, &d.ServiceName, &d.RepositoryFullName,
		&d.Branch, &d.InstallationID, &d.EnvFileContent, &d.IsReset, &d.Status,
		&d.Framework, &d.CodebuildProject, &d.CodebuildLogGroup,
		&d.CodebuildLogStream, &d.BuildID, &d.TaskDefinitionArn,
		&d.ECSService, &d.Port, &d.ErrorMessage,
		&d.ClaimedAt, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanRows(rows pgx.Rows) ([]Deployment, error) {
	var out []Deployment
	for rows.Next() {
		d, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning deployment row: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deployment rows: %w", err)
	}
	return out, nil
}
