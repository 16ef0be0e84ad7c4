package tasks

import (
	"context"

	"aniloader/internal/scheduler"
)

// queuePrune drops queue rows whose series completed or disappeared.
func queuePrune(d Deps) scheduler.TaskFunc {
	return func(ctx context.Context) error {
		return d.Store.QueuePruneCompleted(ctx)
	}
}
