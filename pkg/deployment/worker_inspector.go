package deployment

import (
	"context"
	"log/slog"
	"time"
)

// InspectorWorker polls for INSPECTING deployments and runs the Inspector
// stage for each (SPEC_FULL.md §1). It stands in for the durable-log
// trigger the original system gets from a DynamoDB stream.
type InspectorWorker struct {
	store     *Store
	inspector *Inspector
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewInspectorWorker creates an InspectorWorker polling every 3s (spec
// SPEC_FULL.md §1).
func NewInspectorWorker(store *Store, inspector *Inspector, logger *slog.Logger) *InspectorWorker {
	return &InspectorWorker{store: store, inspector: inspector, interval: 3 * time.Second, batchSize: 10, logger: logger}
}

// Run blocks, polling until ctx is cancelled.
func (w *InspectorWorker) Run(ctx context.Context) {
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

func (w *InspectorWorker) tick(ctx context.Context) {
	rows, err := w.store.ClaimInspecting(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("claiming inspecting deployments", "error", err)
		return
	}

	for _, d := range rows {
		if err := w.inspector.Process(ctx, d); err != nil {
			// Transient: heartbeat was already refreshed by Process; the
			// claim expiry lets another tick pick this row back up.
			w.logger.Warn("inspector stage retry scheduled", "deployment_id", d.DeploymentID, "error", err)
		}
	}
}
