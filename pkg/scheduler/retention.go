package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/retailscope/gatewatch/pkg/store"
	"github.com/retailscope/gatewatch/pkg/telemetry"
)

// RetentionJob sweeps scan events and acked alerts older than the
// configured window out of the store.
func RetentionJob(s *store.Store, days int, logger *slog.Logger) Job {
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:     "retention",
		Schedule: "@daily",
		Func: func(ctx context.Context) error {
			cutoff := time.Now().UTC().AddDate(0, 0, -days)
			pruned, err := s.PruneBefore(ctx, cutoff)
			if err != nil {
				return err
			}
			if pruned > 0 {
				telemetry.Metrics.EventsPruned.Add(float64(pruned))
				logger.Info("retention sweep",
					slog.Int64("pruned", pruned),
					slog.Time("cutoff", cutoff))
			}
			return nil
		},
	}
}
