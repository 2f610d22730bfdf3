package pipeline

import (
	"context"
	"time"
)

// Serve calls run immediately and then once per interval until ctx is done.
// A run that outlasts the interval delays the next one; runs never overlap.
func Serve(ctx context.Context, interval time.Duration, run func(ctx context.Context)) error {
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
