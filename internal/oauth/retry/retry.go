// Package retry wraps the provider token-exchange call in a bounded retry
// policy. Only transient network failures are retried; a rejected code or a
// bad assertion fails immediately.
package retry

import (
	"context"
	"time"

	"github.com/veloway-app/authsvc/internal/oauth"
)

// Policy parametriza los reintentos.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration // delay base; crece linealmente por intento
}

// DefaultPolicy: 3 intentos con backoff de 500ms.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Backoff: 500 * time.Millisecond}
}

// Do ejecuta fn hasta MaxAttempts veces. Reintenta únicamente cuando
// oauth.Retryable(err); el delay bloquea solo al caller (respeta ctx).
// Al agotar los intentos retorna el último error de red.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !oauth.Retryable(err) || attempt == attempts {
			break
		}
		if err := sleep(ctx, time.Duration(attempt)*p.Backoff); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
