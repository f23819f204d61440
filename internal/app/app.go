// Package app wires WhaleRay's configuration, infrastructure clients, and
// domain packages together and runs the selected mode (SPEC_FULL.md §0).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/DuckOriDuck/whaleray/internal/auth"
	"github.com/DuckOriDuck/whaleray/internal/config"
	"github.com/DuckOriDuck/whaleray/internal/httpserver"
	"github.com/DuckOriDuck/whaleray/internal/platform"
	"github.com/DuckOriDuck/whaleray/internal/telemetry"
	"github.com/DuckOriDuck/whaleray/pkg/build"
	"github.com/DuckOriDuck/whaleray/pkg/database"
	"github.com/DuckOriDuck/whaleray/pkg/deployment"
	"github.com/DuckOriDuck/whaleray/pkg/envvault"
	"github.com/DuckOriDuck/whaleray/pkg/githubapp"
	"github.com/DuckOriDuck/whaleray/pkg/installation"
	"github.com/DuckOriDuck/whaleray/pkg/oauthflow"
	"github.com/DuckOriDuck/whaleray/pkg/service"
	"github.com/DuckOriDuck/whaleray/pkg/slack"
)

// Run is the main application entry point: connects to infrastructure and
// starts the mode selected by cfg.Mode (api | worker | migrate).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting whaleray", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	if cfg.Mode == "migrate" {
		return nil
	}

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	awsClients, err := platform.NewAWSClients(ctx)
	if err != nil {
		return fmt.Errorf("loading aws clients: %w", err)
	}

	orphanSweepThreshold, err := time.ParseDuration(cfg.OrphanSweepThreshold)
	if err != nil {
		return fmt.Errorf("parsing orphan sweep threshold %q: %w", cfg.OrphanSweepThreshold, err)
	}

	metricsReg := prometheus.NewRegistry()
	for _, c := range telemetry.All() {
		metricsReg.MustRegister(c)
	}

	// --- Domain stores ---
	deploymentStore := deployment.NewStore(pool, orphanSweepThreshold)
	serviceStore := service.NewStore(pool)
	installationStore := installation.NewStore(pool)
	databaseStore := database.NewStore(pool)
	userStore := oauthflow.NewUserStore(pool)

	notifier := slack.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	deploymentStore.SetNotifier(notifier)
	if notifier.IsEnabled() {
		logger.Info("slack deployment notifications enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack deployment notifications disabled (SLACK_BOT_TOKEN not set)")
	}

	// --- GitHub App wiring ---
	keyFetcher := &githubapp.SecretsManagerKeyFetcher{Client: awsClients.SecretsManager, ARN: cfg.GitHubAppPrivateKeyArn}
	minter := githubapp.NewTokenMinter(cfg.GitHubAppID, keyFetcher, http.DefaultClient)

	vault := envvault.New(awsClients.SSM, cfg.ProjectName, cfg.SSMKMSKeyArn)
	buildTrigger := build.NewTrigger(awsClients.CodeBuild, cfg.ProjectName)
	buildPoller := build.NewPoller(awsClients.CodeBuild)

	intake := deployment.NewIntake(deploymentStore, serviceStore, installationStore)
	inspector := deployment.NewInspector(deploymentStore, vault, minter, buildTrigger, cfg.ECRRepository, logger)
	deployer := deployment.NewDeployer(deploymentStore, serviceStore, awsClients.ECS, awsClients.ServiceDiscovery, deployment.DeployerConfig{
		ProjectName:       cfg.ProjectName,
		ECRRepository:     cfg.ECRRepository,
		ClusterName:       cfg.ClusterName,
		TaskExecutionRole: cfg.TaskExecutionRole,
		TaskRole:          cfg.TaskRole,
		PrivateSubnets:    cfg.PrivateSubnets,
		FargateTaskSG:     cfg.FargateTaskSG,
		NamespaceID:       cfg.NamespaceID,
		APIDomain:         cfg.APIDomain,
	}, logger)

	databaseController := database.NewController(databaseStore, awsClients.SecretsManager, awsClients.ECS, awsClients.ServiceDiscovery, awsClients.EC2, database.ControllerConfig{
		ProjectName:       cfg.ProjectName,
		ClusterName:       cfg.ClusterName,
		TaskExecutionRole: cfg.TaskExecutionRole,
		TaskRole:          cfg.TaskRole,
		PrivateSubnets:    cfg.PrivateSubnets,
		FargateTaskSG:     cfg.FargateTaskSG,
		NamespaceID:       cfg.NamespaceID,
	}, logger)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, pool, rdb, metricsReg, intake, deploymentStore, serviceStore, installationStore, userStore, minter, databaseController, awsClients)
	case "worker":
		return runWorker(ctx, logger, deploymentStore, inspector, deployer, buildPoller)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	pool *pgxpool.Pool,
	rdb *redis.Client,
	metricsReg *prometheus.Registry,
	intake *deployment.Intake,
	deploymentStore *deployment.Store,
	serviceStore *service.Store,
	installationStore *installation.Store,
	userStore *oauthflow.UserStore,
	minter *githubapp.TokenMinter,
	databaseController *database.Controller,
	awsClients *platform.AWSClients,
) error {
	if cfg.JWTSecretArn == "" {
		return errors.New("JWT_SECRET_ARN must be configured in api mode")
	}
	sessionSecret, err := resolveSecret(ctx, awsClients.SecretsManager, cfg.JWTSecretArn)
	if err != nil {
		return fmt.Errorf("resolving session signing key: %w", err)
	}
	authorizer, err := auth.NewAuthorizer(sessionSecret, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("creating authorizer: %w", err)
	}

	authMiddleware := auth.Middleware(authorizer, logger)
	srv := httpserver.NewServer(cfg, logger, pool, rdb, metricsReg, authMiddleware)

	srv.Router.Get("/status", srv.HandleStatus)
	srv.APIRouter.Get("/status", srv.HandleStatus)

	oauthCfg := oauthflow.Config{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		CallbackURL:  cfg.GitHubCallbackURL,
		AppSlug:      cfg.GitHubAppSlug,
		FrontendURL:  cfg.FrontendURL,
	}
	flow := oauthflow.NewFlow(oauthCfg, rdb, authorizer, userStore, installationStore, minter, logger)
	flow.MountPublic(srv.Router)
	flow.MountAuthenticated(srv.APIRouter)

	deployment.NewHandler(deploymentStore, intake).Mount(srv.APIRouter)

	historyFn := func(ctx context.Context, serviceID string, limit int) ([]service.DeploymentSummary, error) {
		deps, err := deploymentStore.ListByService(ctx, serviceID, limit)
		if err != nil {
			return nil, err
		}
		summaries := make([]service.DeploymentSummary, len(deps))
		for i, d := range deps {
			summaries[i] = service.DeploymentSummary{
				DeploymentID: d.DeploymentID,
				Status:       string(d.Status),
				CreatedAt:    d.CreatedAt,
			}
		}
		return summaries, nil
	}
	service.NewHandler(serviceStore, historyFn).Mount(srv.APIRouter)

	database.NewHandler(databaseController).Mount(srv.APIRouter)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// resolveSecret fetches a plaintext secret value from Secrets Manager by
// ARN, resolved once at startup and never logged.
func resolveSecret(ctx context.Context, client *secretsmanager.Client, arn string) (string, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(arn)})
	if err != nil {
		return "", fmt.Errorf("fetching secret %s: %w", arn, err)
	}
	return aws.ToString(out.SecretString), nil
}

func runWorker(
	ctx context.Context,
	logger *slog.Logger,
	deploymentStore *deployment.Store,
	inspector *deployment.Inspector,
	deployer *deployment.Deployer,
	buildPoller *build.Poller,
) error {
	logger.Info("worker started")

	inspectorWorker := deployment.NewInspectorWorker(deploymentStore, inspector, logger)
	buildWorker := deployment.NewBuildWorker(deploymentStore, buildPoller, deployer, logger)

	go inspectorWorker.Run(ctx)
	buildWorker.Run(ctx)

	return ctx.Err()
}
