package export

import (
	"context"
	"time"
)

// retryDelay is the backoff unit; attempt n waits n*n units.
var retryDelay = time.Second

func sleepCtx(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(attempt*attempt) * retryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
