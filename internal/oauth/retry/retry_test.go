package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veloway-app/authsvc/internal/oauth"
)

func netErr() error {
	return oauth.NewError("google", oauth.KindNetwork, errors.New("dial tcp: timeout"))
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Policy{MaxAttempts: 3, Backoff: time.Millisecond},
		func(ctx context.Context) (string, error) {
			calls++
			return "ok", nil
		})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 1, calls)
}

func TestDo_RetriesNetworkErrors(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Policy{MaxAttempts: 3, Backoff: time.Millisecond},
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", netErr()
			}
			return "ok", nil
		})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls)
}

func TestDo_ExhaustsAndReturnsLastError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, Backoff: time.Millisecond},
		func(ctx context.Context) (string, error) {
			calls++
			return "", netErr()
		})
	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, oauth.KindNetwork, oauth.KindOf(err))
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 5, Backoff: time.Millisecond},
		func(ctx context.Context) (string, error) {
			calls++
			return "", oauth.NewError("google", oauth.KindRejectedCode, errors.New("invalid_grant"))
		})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDo_PlainErrorIsNotRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, Backoff: time.Millisecond},
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("boom")
		})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDo_RespectsContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, Policy{MaxAttempts: 3, Backoff: time.Second},
		func(ctx context.Context) (string, error) {
			calls++
			return "", netErr()
		})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsStillRunsOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{}, func(ctx context.Context) (string, error) {
		calls++
		return "x", nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
