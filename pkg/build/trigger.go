// Package build starts and polls CodeBuild builds on behalf of the
// Inspector (trigger) and the BuildWorker poller (spec §4.4 step 4, §4.6).
package build

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codebuild/types"
)

// Params are the environment variables the Inspector supplies to the
// framework-specific builder (spec §4.4 step 4).
type Params struct {
	DeploymentID      string
	ECRImageURI       string
	DotenvSSMPath     string
	SourceDir         string
	BuildContext      string
	DockerfilePath    string
	HasGradleWrapper  bool
}

// Result carries back the identifiers the Status Mutator attaches when
// transitioning to BUILDING.
type Result struct {
	BuildID    string
	LogGroup   string
	LogStream  string
}

// Trigger starts CodeBuild builds.
type Trigger struct {
	client      *codebuild.Client
	projectName string
}

// NewTrigger creates a Trigger against a single CodeBuild project shared by
// all spring-boot deployments.
func NewTrigger(client *codebuild.Client, projectName string) *Trigger {
	return &Trigger{client: client, projectName: projectName}
}

// ProjectName returns the CodeBuild project this Trigger starts builds
// against, attached to deployments as codebuildProject.
func (t *Trigger) ProjectName() string {
	return t.projectName
}

// Start begins a build. The build log stream name is set to deploymentId
// for later retrieval (spec §4.4 step 4).
func (t *Trigger) Start(ctx context.Context, p Params) (*Result, error) {
	envVars := []types.EnvironmentVariable{
		{Name: aws.String("DEPLOYMENT_ID"), Value: aws.String(p.DeploymentID)},
		{Name: aws.String("ECR_IMAGE_URI"), Value: aws.String(p.ECRImageURI)},
		{Name: aws.String("DOTENV_BLOB_SSM_PATH"), Value: aws.String(p.DotenvSSMPath)},
		{Name: aws.String("SOURCE_DIR"), Value: aws.String(p.SourceDir)},
		{Name: aws.String("BUILD_CONTEXT"), Value: aws.String(p.BuildContext)},
		{Name: aws.String("DOCKERFILE_PATH"), Value: aws.String(p.DockerfilePath)},
		{Name: aws.String("HAS_GRADLE_WRAPPER"), Value: aws.String(strconv.FormatBool(p.HasGradleWrapper))},
	}

	out, err := t.client.StartBuild(ctx, &codebuild.StartBuildInput{
		ProjectName:                    aws.String(t.projectName),
		EnvironmentVariablesOverride:   envVars,
		LogsConfigOverride: &types.LogsConfig{
			CloudWatchLogs: &types.CloudWatchLogsConfig{
				Status:    types.LogsConfigStatusTypeEnabled,
				GroupName: aws.String(fmt.Sprintf("/whaleray/builds/%s", t.projectName)),
				StreamName: aws.String(p.DeploymentID),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("starting build for deployment %s: %w", p.DeploymentID, err)
	}

	return &Result{
		BuildID:   aws.ToString(out.Build.Id),
		LogGroup:  fmt.Sprintf("/whaleray/builds/%s", t.projectName),
		LogStream: p.DeploymentID,
	}, nil
}
