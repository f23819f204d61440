package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/servicediscovery"
	sdtypes "github.com/aws/aws-sdk-go-v2/service/servicediscovery/types"
	"github.com/google/uuid"
)

// ErrAlreadyExists is returned by Create when the caller already has a
// live database row (invariant 6; also enforced by a partial unique index).
var ErrAlreadyExists = errors.New("database already exists for user")

// ControllerConfig holds the cluster/rollout settings the Controller needs.
type ControllerConfig struct {
	ProjectName       string
	ClusterName       string
	TaskExecutionRole string
	TaskRole          string
	PrivateSubnets    []string
	FargateTaskSG     string
	NamespaceID       string
}

// Controller implements the Database lifecycle (spec §4.7).
type Controller struct {
	store   *Store
	secrets *secretsmanager.Client
	ecs     *ecs.Client
	sd      *servicediscovery.Client
	ec2     *ec2.Client
	cfg     ControllerConfig
	logger  *slog.Logger
}

// NewController creates a Controller.
func NewController(store *Store, secrets *secretsmanager.Client, ecsClient *ecs.Client, sdClient *servicediscovery.Client, ec2Client *ec2.Client, cfg ControllerConfig, logger *slog.Logger) *Controller {
	return &Controller{store: store, secrets: secrets, ecs: ecsClient, sd: sdClient, ec2: ec2Client, cfg: cfg, logger: logger}
}

// Get reconciles and returns the user's database, describing the cluster
// service so dbState reflects the live ECS deployment rather than the last
// value the controller wrote (spec §4.7 step "describe the cluster service
// to reconcile dbState").
func (c *Controller) Get(ctx context.Context, userID string) (*Database, error) {
	d, err := c.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if d.ServiceArn == "" {
		return d, nil
	}

	out, err := c.ecs.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(c.cfg.ClusterName),
		Services: []string{d.ServiceArn},
	})
	if err != nil || len(out.Services) == 0 {
		return d, nil
	}

	svc := out.Services[0]
	newState := reconcileState(svc.RunningCount, svc.DesiredCount)

	if newState != d.DBState {
		if err := c.store.UpdateState(ctx, d.DatabaseID, newState, UpdateFields{}); err != nil {
			c.logger.Error("persisting reconciled db state", "database_id", d.DatabaseID, "error", err)
		}
		d.DBState = newState
	}

	return d, nil
}

// secretPath is the Secrets Manager path a database's password lives under.
func (c *Controller) secretPath(databaseID string) string {
	return fmt.Sprintf("/%s/db/%s/password", c.cfg.ProjectName, databaseID)
}

// Create provisions a dedicated Postgres instance for userID (spec §4.7).
// It returns the plaintext password exactly once; the caller must not
// retain or log it.
func (c *Controller) Create(ctx context.Context, userID string) (*Database, string, error) {
	if _, err := c.store.GetByUserID(ctx, userID); err == nil {
		return nil, "", ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, "", err
	}

	databaseID := uuid.NewString()
	username := fmt.Sprintf("user_%s", shortID(userID))
	password, err := generatePassword()
	if err != nil {
		return nil, "", fmt.Errorf("generating password: %w", err)
	}

	secretARN := c.secretPath(databaseID)
	if _, err := c.secrets.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(secretARN),
		SecretString: aws.String(password),
	}); err != nil {
		return nil, "", fmt.Errorf("storing database password: %w", err)
	}

	az, subnetID, err := c.selectSubnet(ctx)
	if err != nil {
		c.compensate(ctx, secretARN, "")
		return nil, "", fmt.Errorf("selecting subnet: %w", err)
	}

	d := Database{
		DatabaseID:       databaseID,
		UserID:           userID,
		DBState:          StateCreating,
		Username:         username,
		PasswordParam:    secretARN,
		AvailabilityZone: az,
		SubnetID:         subnetID,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := c.store.Create(ctx, d); err != nil {
		c.compensate(ctx, secretARN, "")
		return nil, "", fmt.Errorf("creating database row: %w", err)
	}

	taskDefArn, err := c.registerTaskDefinition(ctx, d)
	if err != nil {
		c.compensate(ctx, secretARN, databaseID)
		return nil, "", fmt.Errorf("registering database task definition: %w", err)
	}

	registryArn, err := c.sd.CreateService(ctx, &servicediscovery.CreateServiceInput{
		Name:        aws.String(fmt.Sprintf("db-%s", shortID(databaseID))),
		NamespaceId: aws.String(c.cfg.NamespaceID),
		DnsConfig: &sdtypes.DnsConfig{
			DnsRecords: []sdtypes.DnsRecord{{Type: sdtypes.RecordTypeA, Ttl: aws.Int64(60)}},
		},
	})
	if err != nil {
		c.compensate(ctx, secretARN, databaseID)
		return nil, "", fmt.Errorf("registering database service discovery: %w", err)
	}

	volumeID := fmt.Sprintf("db-vol-%s", shortID(databaseID))
	svcOut, err := c.ecs.CreateService(ctx, &ecs.CreateServiceInput{
		Cluster:        aws.String(c.cfg.ClusterName),
		ServiceName:    aws.String(fmt.Sprintf("db-%s", shortID(databaseID))),
		TaskDefinition: aws.String(taskDefArn),
		DesiredCount:   aws.Int32(1),
		LaunchType:     ecstypes.LaunchTypeFargate,
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        []string{subnetID},
				SecurityGroups: []string{c.cfg.FargateTaskSG},
				AssignPublicIp: ecstypes.AssignPublicIpDisabled,
			},
		},
		ServiceRegistries: []ecstypes.ServiceRegistry{
			{RegistryArn: registryArn.Service.Arn, ContainerName: aws.String("postgres")},
		},
	})
	if err != nil {
		c.compensate(ctx, secretARN, databaseID)
		return nil, "", fmt.Errorf("creating database cluster service: %w", err)
	}

	serviceArn := aws.ToString(svcOut.Service.ServiceArn)
	if err := c.store.UpdateState(ctx, databaseID, StateCreating, UpdateFields{
		ServiceArn:        &serviceArn,
		ServiceRegistryID: registryArn.Service.Id,
		TaskDefinitionArn: &taskDefArn,
		VolumeID:          &volumeID,
	}); err != nil {
		c.logger.Error("recording database service coordinates", "database_id", databaseID, "error", err)
	}

	d.ServiceArn = serviceArn
	d.TaskDefinitionArn = taskDefArn
	d.VolumeID = volumeID
	return &d, password, nil
}

// registerTaskDefinition builds the two-container task (postgres + pgadmin)
// with a "pgdata" volume mounted at the data directory and a pg_isready
// health check (spec §4.7). No EBS volume is created or attached: the
// volume lives in the task's own storage and does not outlive the task.
func (c *Controller) registerTaskDefinition(ctx context.Context, d Database) (string, error) {
	family := fmt.Sprintf("%s-db-%s", c.cfg.ProjectName, shortID(d.DatabaseID))

	out, err := c.ecs.RegisterTaskDefinition(ctx, &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(family),
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		Cpu:                     aws.String("256"),
		Memory:                  aws.String("1024"),
		ExecutionRoleArn:        aws.String(c.cfg.TaskExecutionRole),
		TaskRoleArn:             aws.String(c.cfg.TaskRole),
		// The data directory volume has no host path, EFS or EBS
		// configuration, so it is backed by the task's ephemeral storage.
		Volumes: []ecstypes.Volume{
			{Name: aws.String("pgdata")},
		},
		ContainerDefinitions: []ecstypes.ContainerDefinition{
			{
				Name:  aws.String("postgres"),
				Image: aws.String("postgres:16-alpine"),
				Environment: []ecstypes.KeyValuePair{
					{Name: aws.String("POSTGRES_USER"), Value: aws.String(d.Username)},
					{Name: aws.String("POSTGRES_DB"), Value: aws.String("whaleray")},
					{Name: aws.String("POSTGRES_PASSWORD_FILE"), Value: aws.String("/run/secrets/password")},
				},
				Secrets: []ecstypes.Secret{
					{Name: aws.String("POSTGRES_PASSWORD"), ValueFrom: aws.String(d.PasswordParam)},
				},
				PortMappings: []ecstypes.PortMapping{{ContainerPort: aws.Int32(5432)}},
				MountPoints: []ecstypes.MountPoint{
					{SourceVolume: aws.String("pgdata"), ContainerPath: aws.String("/var/lib/postgresql/data")},
				},
				HealthCheck: &ecstypes.HealthCheck{
					Command:     []string{"CMD-SHELL", fmt.Sprintf("pg_isready -U %s -d whaleray", d.Username)},
					Interval:    aws.Int32(30),
					Timeout:     aws.Int32(5),
					Retries:     aws.Int32(3),
					StartPeriod: aws.Int32(30),
				},
				LogConfiguration: &ecstypes.LogConfiguration{
					LogDriver: ecstypes.LogDriverAwslogs,
					Options: map[string]string{
						"awslogs-group":         fmt.Sprintf("/%s/database", c.cfg.ProjectName),
						"awslogs-region":        "us-east-1",
						"awslogs-stream-prefix": d.DatabaseID,
					},
				},
			},
			{
				Name:      aws.String("pgadmin"),
				Image:     aws.String("dpage/pgadmin4:latest"),
				Essential: aws.Bool(false),
				Environment: []ecstypes.KeyValuePair{
					{Name: aws.String("PGADMIN_DEFAULT_EMAIL"), Value: aws.String("admin@whaleray.local")},
					{Name: aws.String("PGADMIN_DEFAULT_PASSWORD"), Value: aws.String(d.Username)},
				},
				PortMappings: []ecstypes.PortMapping{{ContainerPort: aws.Int32(80)}},
				LogConfiguration: &ecstypes.LogConfiguration{
					LogDriver: ecstypes.LogDriverAwslogs,
					Options: map[string]string{
						"awslogs-group":         fmt.Sprintf("/%s/database", c.cfg.ProjectName),
						"awslogs-region":        "us-east-1",
						"awslogs-stream-prefix": d.DatabaseID + "-admin",
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

// selectSubnet picks one of the configured private subnets and returns its
// availability zone (spec §4.7 "select a subnet and record its AZ").
func (c *Controller) selectSubnet(ctx context.Context) (az, subnetID string, err error) {
	if len(c.cfg.PrivateSubnets) == 0 {
		return "", "", errors.New("no private subnets configured")
	}

	out, err := c.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		SubnetIds: c.cfg.PrivateSubnets,
	})
	if err != nil {
		return "", "", err
	}
	if len(out.Subnets) == 0 {
		return "", "", errors.New("no subnets returned for configured subnet ids")
	}

	chosen := out.Subnets[0]
	return aws.ToString(chosen.AvailabilityZone), aws.ToString(chosen.SubnetId), nil
}

// compensate implements the §4.7 "on any failure after secret write"
// rollback: delete the secret and, if created, the DB row. Both steps are
// idempotent under retry (secret delete tolerates already-deleted, row
// delete is a no-op on a missing primary key) so compensate is safe to call
// more than once for the same databaseID.
func (c *Controller) compensate(ctx context.Context, secretARN, databaseID string) {
	if _, err := c.secrets.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(secretARN),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	}); err != nil {
		c.logger.Error("compensating: deleting secret", "secret", secretARN, "error", err)
	}

	if databaseID == "" {
		return
	}
	if err := c.store.Delete(ctx, databaseID); err != nil {
		c.logger.Error("compensating: deleting database row", "database_id", databaseID, "error", err)
	}
}

// Delete tears down a user's database best-effort, in order, continuing
// past individual failures (spec §4.7). Storage volume teardown is left to
// platform lifecycle.
func (c *Controller) Delete(ctx context.Context, userID string) error {
	d, err := c.store.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}

	if d.ServiceArn != "" {
		if _, err := c.ecs.DeleteService(ctx, &ecs.DeleteServiceInput{
			Cluster: aws.String(c.cfg.ClusterName),
			Service: aws.String(d.ServiceArn),
			Force:   aws.Bool(true),
		}); err != nil {
			c.logger.Error("deleting cluster service", "database_id", d.DatabaseID, "error", err)
		}
	}

	if d.TaskDefinitionArn != "" {
		if _, err := c.ecs.DeregisterTaskDefinition(ctx, &ecs.DeregisterTaskDefinitionInput{
			TaskDefinition: aws.String(d.TaskDefinitionArn),
		}); err != nil {
			c.logger.Error("deregistering task definition", "database_id", d.DatabaseID, "error", err)
		}
	}

	if d.PasswordParam != "" {
		if _, err := c.secrets.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
			SecretId:                   aws.String(d.PasswordParam),
			ForceDeleteWithoutRecovery: aws.Bool(true),
		}); err != nil {
			c.logger.Error("deleting database secret", "database_id", d.DatabaseID, "error", err)
		}
	}

	if err := c.store.Delete(ctx, d.DatabaseID); err != nil {
		c.logger.Error("deleting database row", "database_id", d.DatabaseID, "error", err)
	}

	return nil
}

// reconcileState maps an ECS service's running/desired counts to a dbState
// (spec §4.7 get(userId)).
func reconcileState(running, desired int32) State {
	switch {
	case desired > 0 && running == desired:
		return StateAvailable
	case desired > 0 && running < desired:
		return StateCreating
	case desired == 0:
		return StateStopped
	default:
		return StateUnknown
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
