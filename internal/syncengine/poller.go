package syncengine

import (
	"context"
	"errors"
	"time"
)

// DefaultPollInterval is the period between background refreshes.
const DefaultPollInterval = 30 * time.Second

// Run refreshes immediately and then every interval until ctx is done.
// Failures never stop the loop: a signed-out engine keeps ticking without
// calling the server and resumes once a session is set again.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		e.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	err := e.Refresh(ctx)
	switch {
	case err == nil, errors.Is(err, ErrTransient):
		// transient failures were logged by Refresh
	case errors.Is(err, ErrAuth):
		e.logger.Printf("sync: poll stopped fetching until the next sign-in")
	case ctx.Err() != nil:
	default:
		e.logger.Printf("sync: refresh: %v", err)
	}
	if e.afterTick != nil {
		e.afterTick(err)
	}
}
