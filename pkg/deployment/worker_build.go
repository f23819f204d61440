package deployment

import (
	"context"
	"log/slog"
	"time"

	"github.com/DuckOriDuck/whaleray/internal/telemetry"
	bld "github.com/DuckOriDuck/whaleray/pkg/build"
)

// BuildWorker polls CodeBuild for build completion and hands terminal
// results to the Deployer (SPEC_FULL.md §1; spec §4.6).
type BuildWorker struct {
	store     *Store
	poller    *bld.Poller
	deployer  *Deployer
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewBuildWorker creates a BuildWorker polling every 5s.
func NewBuildWorker(store *Store, poller *bld.Poller, deployer *Deployer, logger *slog.Logger) *BuildWorker {
	return &BuildWorker{store: store, poller: poller, deployer: deployer, interval: 5 * time.Second, batchSize: 10, logger: logger}
}

// Run blocks, polling until ctx is cancelled.
func (w *BuildWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *BuildWorker) tick(ctx context.Context) {
	start := time.Now()
	defer func() { telemetry.BuildPollDuration.Observe(time.Since(start).Seconds()) }()

	rows, err := w.store.ClaimBuilding(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("claiming building deployments", "error", err)
		return
	}

	for _, d := range rows {
		if d.BuildID == "" {
			// Inspector hasn't attached a build id yet; refresh the row
			// without touching status. The claim stays until it expires.
			_ = w.store.RefreshHeartbeat(ctx, d.DeploymentID)
			continue
		}

		status, err := w.poller.Poll(ctx, d.BuildID)
		if err != nil {
			w.logger.Warn("build poll failed, will retry", "deployment_id", d.DeploymentID, "error", err)
			_ = w.store.RefreshHeartbeat(ctx, d.DeploymentID)
			continue
		}

		if status == bld.StatusInProgress {
			_ = w.store.RefreshHeartbeat(ctx, d.DeploymentID)
			continue
		}

		w.deployer.ProcessBuildResult(ctx, d, status)
	}
}
