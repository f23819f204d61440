package deployment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/servicediscovery"
	sdtypes "github.com/aws/aws-sdk-go-v2/service/servicediscovery/types"

	bld "github.com/DuckOriDuck/whaleray/pkg/build"
	"github.com/DuckOriDuck/whaleray/pkg/service"
)

// DeployerConfig holds the cluster/rollout settings the Deployer needs.
type DeployerConfig struct {
	ProjectName       string
	ECRRepository     string
	ClusterName       string
	TaskExecutionRole string
	TaskRole          string
	PrivateSubnets    []string
	FargateTaskSG     string
	NamespaceID       string
	APIDomain         string
}

// Deployer reacts to build-completion events (spec §4.6).
type Deployer struct {
	store    *Store
	services *service.Store
	ecs      *ecs.Client
	sd       *servicediscovery.Client
	cfg      DeployerConfig
	logger   *slog.Logger
}

// NewDeployer creates a Deployer.
func NewDeployer(store *Store, services *service.Store, ecsClient *ecs.Client, sdClient *servicediscovery.Client, cfg DeployerConfig, logger *slog.Logger) *Deployer {
	return &Deployer{store: store, services: services, ecs: ecsClient, sd: sdClient, cfg: cfg, logger: logger}
}

// ProcessBuildResult advances a BUILDING deployment once its build reaches a
// terminal status. Deployer does not re-raise on error (spec §7:
// task-template registration is not idempotent under retry) — it logs and
// leaves the row for the orphan sweeper if it cannot make progress.
func (dp *Deployer) ProcessBuildResult(ctx context.Context, d Deployment, status bld.Status) {
	if status == bld.StatusFailed {
		msg := "build failed"
		if err := dp.store.UpdateStatus(ctx, d.DeploymentID, StatusBuildingFail, UpdateFields{ErrorMessage: &msg}); err != nil {
			dp.logger.Error("recording BUILDING_FAIL", "deployment_id", d.DeploymentID, "error", err)
		}
		return
	}

	if err := dp.store.UpdateStatus(ctx, d.DeploymentID, StatusDeploying, UpdateFields{}); err != nil {
		dp.logger.Error("recording DEPLOYING", "deployment_id", d.DeploymentID, "error", err)
		return
	}

	taskDefArn, err := dp.registerTaskDefinition(ctx, d)
	if err != nil {
		dp.fail(ctx, d, fmt.Errorf("registering task definition: %w", err))
		return
	}

	ecsServiceName := d.ServiceID
	if err := dp.rolloutService(ctx, d, ecsServiceName, taskDefArn); err != nil {
		dp.fail(ctx, d, fmt.Errorf("rolling out cluster service: %w", err))
		return
	}

	serviceEndpoint := fmt.Sprintf("https://%s/%s", dp.cfg.APIDomain, d.ServiceID)

	if err := dp.store.UpdateStatus(ctx, d.DeploymentID, StatusRunning, UpdateFields{
		ECSService:        &ecsServiceName,
		TaskDefinitionArn: &taskDefArn,
	}); err != nil {
		dp.logger.Error("recording RUNNING", "deployment_id", d.DeploymentID, "error", err)
		return
	}

	dp.supersede(ctx, d, serviceEndpoint)
}

func (dp *Deployer) fail(ctx context.Context, d Deployment, cause error) {
	msg := cause.Error()
	if err := dp.store.UpdateStatus(ctx, d.DeploymentID, StatusDeployingFail, UpdateFields{ErrorMessage: &msg}); err != nil {
		dp.logger.Error("recording DEPLOYING_FAIL", "deployment_id", d.DeploymentID, "error", err)
	}
}

// registerTaskDefinition implements spec §4.6 step 2: name
// {project}-{serviceName}-{dep8}, CPU/memory 256/512, awsvpc networking,
// port mapping from d.Port, log driver pointing at the build's log group
// with stream prefix deploymentId, image URI {registry}:{deploymentId}.
func (dp *Deployer) registerTaskDefinition(ctx context.Context, d Deployment) (string, error) {
	dep8 := d.DeploymentID
	if len(dep8) > 8 {
		dep8 = dep8[:8]
	}
	family := fmt.Sprintf("%s-%s-%s", dp.cfg.ProjectName, d.ServiceName, dep8)
	imageURI := fmt.Sprintf("%s:%s", dp.cfg.ECRRepository, d.DeploymentID)

	out, err := dp.ecs.RegisterTaskDefinition(ctx, &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(family),
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		Cpu:                     aws.String("256"),
		Memory:                  aws.String("512"),
		ExecutionRoleArn:        aws.String(dp.cfg.TaskExecutionRole),
		TaskRoleArn:             aws.String(dp.cfg.TaskRole),
		ContainerDefinitions: []ecstypes.ContainerDefinition{
			{
				Name:  aws.String(d.ServiceName),
				Image: aws.String(imageURI),
				PortMappings: []ecstypes.PortMapping{
					{ContainerPort: aws.Int32(int32(d.Port))},
				},
				LogConfiguration: &ecstypes.LogConfiguration{
					LogDriver: ecstypes.LogDriverAwslogs,
					Options: map[string]string{
						"awslogs-group":         d.CodebuildLogGroup,
						"awslogs-region":        "us-east-1",
						"awslogs-stream-prefix": d.DeploymentID,
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	return aws.ToString(out.TaskDefinition.TaskDefinitionArn), nil
}

// rolloutService implements spec §4.6 step 3: look up the existing cluster
// service by serviceId; update-in-place if ACTIVE, else create with private
// subnets, a security group, and a service-discovery registry binding.
func (dp *Deployer) rolloutService(ctx context.Context, d Deployment, ecsServiceName, taskDefArn string) error {
	describe, err := dp.ecs.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(dp.cfg.ClusterName),
		Services: []string{ecsServiceName},
	})
	if err != nil {
		return fmt.Errorf("describing cluster service: %w", err)
	}

	active := false
	for _, svc := range describe.Services {
		if svc.Status != nil && *svc.Status == "ACTIVE" {
			active = true
			break
		}
	}

	if active {
		_, err := dp.ecs.UpdateService(ctx, &ecs.UpdateServiceInput{
			Cluster:            aws.String(dp.cfg.ClusterName),
			Service:             aws.String(ecsServiceName),
			TaskDefinition:       aws.String(taskDefArn),
			ForceNewDeployment:  true,
		})
		if err != nil {
			return fmt.Errorf("updating cluster service: %w", err)
		}
		return nil
	}

	registryArn, err := dp.registerServiceDiscovery(ctx, d)
	if err != nil {
		return fmt.Errorf("registering service discovery: %w", err)
	}

	_, err = dp.ecs.CreateService(ctx, &ecs.CreateServiceInput{
		Cluster:        aws.String(dp.cfg.ClusterName),
		ServiceName:    aws.String(ecsServiceName),
		TaskDefinition: aws.String(taskDefArn),
		DesiredCount:   aws.Int32(1),
		LaunchType:     ecstypes.LaunchTypeFargate,
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        dp.cfg.PrivateSubnets,
				SecurityGroups: []string{dp.cfg.FargateTaskSG},
				AssignPublicIp: ecstypes.AssignPublicIpDisabled,
			},
		},
		ServiceRegistries: []ecstypes.ServiceRegistry{
			{RegistryArn: aws.String(registryArn), ContainerName: aws.String(d.ServiceName)},
		},
	})
	if err != nil {
		return fmt.Errorf("creating cluster service: %w", err)
	}

	return nil
}

func (dp *Deployer) registerServiceDiscovery(ctx context.Context, d Deployment) (string, error) {
	out, err := dp.sd.CreateService(ctx, &servicediscovery.CreateServiceInput{
		Name:        aws.String(d.ServiceID),
		NamespaceId: aws.String(dp.cfg.NamespaceID),
		DnsConfig: &sdtypes.DnsConfig{
			DnsRecords: []sdtypes.DnsRecord{
				{Type: sdtypes.RecordTypeA, Ttl: aws.Int64(60)},
			},
		},
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.Service.Arn), nil
}

// supersede implements spec §4.6 step 5. Failure is logged but never fails
// the rollout — invariant 1 is eventually consistent, bounded by the next
// successful deployment (spec §4.6).
func (dp *Deployer) supersede(ctx context.Context, d Deployment, serviceEndpoint string) {
	previous, err := dp.services.Supersede(ctx, d.ServiceID, d.UserID, d.ServiceName, d.DeploymentID, serviceEndpoint)
	if err != nil {
		dp.logger.Error("supersession failed", "service_id", d.ServiceID, "error", err)
		return
	}
	if previous == "" {
		return
	}

	if err := dp.store.UpdateStatus(ctx, previous, StatusSuperseded, UpdateFields{}); err != nil {
		dp.logger.Error("marking prior deployment superseded", "deployment_id", previous, "error", err)
	}
}
