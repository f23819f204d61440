package deployment

import "time"

// Deployment is a single attempt to publish a specific (repositoryFullName,
// branch) at a moment in time (spec §3).
type Deployment struct {
	DeploymentID         string     `json:"deploymentId"`
	UserID               string     `json:"userId"`
	ServiceID            string     `json:"serviceId"`
	ServiceName          string     `json:"serviceName"`
	RepositoryFullName   string     `json:"repositoryFullName"`
	Branch               string     `json:"branch"`
	InstallationID       int64      `json:"installationId"`
	EnvFileContent       string     `json:"-"` // transient at intake only, never echoed back
	IsReset              bool       `json:"-"`
	Status               Status     `json:"status"`
	Framework            string     `json:"framework,omitempty"`
	CodebuildProject     string     `json:"codebuildProject,omitempty"`
	CodebuildLogGroup    string     `json:"codebuildLogGroup,omitempty"`
	CodebuildLogStream   string     `json:"codebuildLogStream,omitempty"`
	BuildID              string     `json:"buildId,omitempty"`
	TaskDefinitionArn    string     `json:"taskDefinitionArn,omitempty"`
	ECSService           string     `json:"ecsService,omitempty"`
	Port                 int        `json:"port,omitempty"`
	ErrorMessage         string     `json:"errorMessage,omitempty"`
	ClaimedAt            *time.Time `json:"-"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// DefaultPort is the default container port; the Spring family uses 8080.
const (
	DefaultPort    = 3000
	SpringBootPort = 8080
)

// CreateRequest is the body of POST /deployments (spec §4.3/§6).
type CreateRequest struct {
	RepositoryFullName string `json:"repositoryFullName" validate:"required"`
	Branch             string `json:"branch"`
	EnvFileContent     string `json:"envFileContent" validate:"max=4096"`
	IsReset            bool   `json:"isReset"`
}

// CreateResponse is the immediate response to POST /deployments.
type CreateResponse struct {
	DeploymentID string `json:"deploymentId"`
	Status       Status `json:"status"`
}
