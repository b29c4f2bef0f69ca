package orchestrator

import (
	"context"
	"time"

	"github.com/mindfold/solace/logging"
)

// BestEffort launches fn as a detached background task. The task inherits
// request-scoped values but is exempt from the caller's cancellation: it
// runs to completion (or its own timeout) after the enclosing request has
// returned. There is no join point; failures are terminal to the task and
// observable only through the logger.
func BestEffort(ctx context.Context, logger logging.Logger, timeout time.Duration, task string, fn func(context.Context) error) {
	detached := context.WithoutCancel(ctx)
	go func() {
		tctx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()
		start := time.Now()
		if err := fn(tctx); err != nil {
			logger.Warn("best-effort background write failed", "task", task, "duration", time.Since(start), "error", err)
			return
		}
		logger.Debug("best-effort background write completed", "task", task, "duration", time.Since(start))
	}()
}
