// Package maintenance runs the scheduled store sweep: reconciling each
// contact's derived preview/unread fields against its session and
// refreshing the pebble disk/WAL/compaction telemetry.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"backchannel/pkg/logger"
	"backchannel/pkg/state"
	"backchannel/pkg/store"
	"backchannel/pkg/telemetry"

	"github.com/adhocore/gronx"
)

// Start launches the sweep scheduler. An empty cron defaults to hourly.
// Returns a cancel func.
func Start(ctx context.Context, st *state.Store, cronExpr string) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = "0 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("maintenance_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid maintenance cron expression: %s", cronExpr)
	}
	logger.Info("maintenance_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick for the cron expression with gronx
// and sleeps until then.
func runScheduler(ctx context.Context, st *state.Store, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("maintenance_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("maintenance_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(st); err != nil {
				logger.Error("maintenance_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("maintenance_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single sweep. Also invoked at startup.
func RunOnce(st *state.Store) error {
	start := time.Now()
	fixed := st.ReconcileDerived()
	m := store.GetPebbleMetrics()
	telemetry.StoreDiskBytes.Set(float64(m.DiskBytes))
	logger.Info("maintenance_sweep_done",
		"reconciled", fixed,
		"disk_bytes", m.DiskBytes,
		"wal_bytes", m.WALBytes,
		"l0_files", m.L0Files,
		"took_ms", time.Since(start).Milliseconds())
	return nil
}
