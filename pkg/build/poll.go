package build

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codebuild/types"
)

// Status is the build-completion event this package's poller surfaces to
// the Deployer (spec §4.6: "builder emits events with build-status ∈
// {SUCCEEDED, FAILED}").
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
)

// Poller polls CodeBuild for build completion, standing in for the
// original's EventBridge build-status subscription (SPEC_FULL.md §1).
type Poller struct {
	client *codebuild.Client
}

// NewPoller creates a Poller.
func NewPoller(client *codebuild.Client) *Poller {
	return &Poller{client: client}
}

// Poll fetches the current status of a single build.
func (p *Poller) Poll(ctx context.Context, buildID string) (Status, error) {
	out, err := p.client.BatchGetBuilds(ctx, &codebuild.BatchGetBuildsInput{Ids: []string{buildID}})
	if err != nil {
		return "", fmt.Errorf("fetching build %s: %w", buildID, err)
	}
	if len(out.Builds) == 0 {
		return "", fmt.Errorf("build %s not found", buildID)
	}

	switch out.Builds[0].BuildStatus {
	case types.StatusTypeSucceeded:
		return StatusSucceeded, nil
	case types.StatusTypeFailed, types.StatusTypeFault, types.StatusTypeStopped, types.StatusTypeTimedOut:
		return StatusFailed, nil
	default:
		return StatusInProgress, nil
	}
}
