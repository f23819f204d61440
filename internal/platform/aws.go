package platform

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/servicediscovery"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// AWSClients bundles the service clients WhaleRay's domain packages need.
// Every component in SPEC_FULL.md §4 that talks to AWS does so through one
// of these, constructed once from a single shared aws.Config the way the
// teacher builds one pgx pool and one redis client for the whole process.
type AWSClients struct {
	SSM              *ssm.Client
	SecretsManager   *secretsmanager.Client
	CodeBuild        *codebuild.Client
	ECS              *ecs.Client
	ServiceDiscovery *servicediscovery.Client
	EC2              *ec2.Client
}

// NewAWSClients loads the default AWS config (region + credentials from the
// environment/instance role) and builds every client WhaleRay uses.
func NewAWSClients(ctx context.Context) (*AWSClients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return &AWSClients{
		SSM:              ssm.NewFromConfig(cfg),
		SecretsManager:   secretsmanager.NewFromConfig(cfg),
		CodeBuild:        codebuild.NewFromConfig(cfg),
		ECS:              ecs.NewFromConfig(cfg),
		ServiceDiscovery: servicediscovery.NewFromConfig(cfg),
		EC2:              ec2.NewFromConfig(cfg),
	}, nil
}
