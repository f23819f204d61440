package deployment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DuckOriDuck/whaleray/pkg/installation"
	"github.com/DuckOriDuck/whaleray/pkg/service"
)

// ErrInputInvalid is the InputInvalid error kind (spec §7): malformed
// request, returned as 4xx immediately, nothing persisted.
var ErrInputInvalid = errors.New("malformed deployment request")

// ErrInstallationNotFound is the PreconditionUnmet error kind: no
// installation grants access to the requested repository owner.
var ErrInstallationNotFound = errors.New("no installation found for repository owner")

// Intake is Request Intake (spec §4.3).
type Intake struct {
	deployments   *Store
	services      *service.Store
	installations *installation.Store
}

// NewIntake creates an Intake.
func NewIntake(deployments *Store, services *service.Store, installations *installation.Store) *Intake {
	return &Intake{deployments: deployments, services: services, installations: installations}
}

// Create validates the request, resolves the installation, and persists the
// initial Deployment row with status INSPECTING. The write itself is the
// event that triggers the Inspector — the response is immediate, no
// synchronous wait.
func (in *Intake) Create(ctx context.Context, userID string, req CreateRequest) (*Deployment, error) {
	owner, name, err := splitRepositoryFullName(req.RepositoryFullName)
	if err != nil {
		return nil, err
	}

	inst, err := in.installations.GetByUserAndAccountLogin(ctx, userID, owner)
	if err != nil {
		if errors.Is(err, installation.ErrNotFound) {
			return nil, ErrInstallationNotFound
		}
		return nil, fmt.Errorf("resolving installation: %w", err)
	}

	branch := req.Branch
	if branch == "" {
		branch = "main"
	}

	serviceName := fmt.Sprintf("%s-%s", owner, name)
	serviceID := fmt.Sprintf("%s-%s", userID, serviceName)

	if err := in.services.EnsureExists(ctx, serviceID, userID, serviceName); err != nil {
		return nil, fmt.Errorf("ensuring service row: %w", err)
	}

	d := &Deployment{
		UserID:             userID,
		ServiceID:          serviceID,
		ServiceName:        serviceName,
		RepositoryFullName: req.RepositoryFullName,
		Branch:             branch,
		InstallationID:     inst.InstallationID,
		EnvFileContent:     req.EnvFileContent,
		IsReset:            req.IsReset,
	}

	if err := in.deployments.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("creating deployment: %w", err)
	}

	return d, nil
}

// splitRepositoryFullName validates the "owner/name" shape (spec §4.3).
func splitRepositoryFullName(full string) (owner, name string, err error) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: repositoryFullName must be shaped owner/name", ErrInputInvalid)
	}
	return parts[0], parts[1], nil
}
