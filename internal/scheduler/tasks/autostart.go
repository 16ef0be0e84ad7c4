package tasks

import (
	"context"
	"errors"

	"aniloader/internal/engine"
	"aniloader/internal/scheduler"
)

// autostart kicks off a run in the configured mode. Fired once at boot and
// again on the nightly schedule; an already-running engine is not an error.
func autostart(d Deps, mode engine.Mode) scheduler.TaskFunc {
	return func(ctx context.Context) error {
		err := d.Engine.Start(mode)
		if errors.Is(err, engine.ErrAlreadyRunning) {
			d.Logger.Info().Str("mode", string(mode)).Msg("autostart skipped, run already in flight")
			return nil
		}
		return err
	}
}
