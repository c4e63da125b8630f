package providers

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

var errPending = errors.New("provider job still running")

// PollBackoff builds the wait schedule between status checks of a queued
// provider job.
type PollBackoff func() backoff.BackOff

func defaultPollBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 10 * time.Minute
	return b
}

// poll calls check until it returns nil or a non-pending error. check signals
// "not done yet" with errPending; any other error stops polling.
func poll(ctx context.Context, provider string, schedule PollBackoff, check func() error) error {
	if schedule == nil {
		schedule = defaultPollBackoff
	}
	err := backoff.Retry(func() error {
		err := check()
		if err == nil || errors.Is(err, errPending) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(schedule(), ctx))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errPending):
		return failure(provider, 0, "timed out waiting for result", err)
	default:
		return failure(provider, 0, "", err)
	}
}
