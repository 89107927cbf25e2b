package sqliter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultBusyRetries is how many times a busy or locked step is retried.
	DefaultBusyRetries = 50
	// DefaultBusyRetryDelay is the pause between busy retries.
	DefaultBusyRetryDelay = time.Millisecond
)

var errStepBusy = errors.New("database is busy")

// busyRetry is a bounded retry with a fixed sleep step, for transient busy
// and locked results from a single local engine.
type busyRetry struct {
	limit uint64
	delay time.Duration
}

var defaultBusyRetry = busyRetry{limit: DefaultBusyRetries, delay: DefaultBusyRetryDelay}

// step advances cur, retrying busy and locked results. It returns StepRow or
// StepDone, or an error once the retry ceiling is hit, ctx is done, or the
// engine reports any other failure.
func (r busyRetry) step(ctx context.Context, cur Cursor) (StepResult, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(r.delay), r.limit), ctx)

	var retries int
	res, err := backoff.RetryNotifyWithData[StepResult](func() (StepResult, error) {
		res, err := cur.Step()
		if err != nil {
			return res, backoff.Permanent(err)
		}
		if res == StepBusy || res == StepLocked {
			return res, errStepBusy
		}
		return res, nil
	}, policy, func(error, time.Duration) {
		retries++
	})

	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, errStepBusy):
		return res, &Error{
			Type:    ErrBusyRetryExceeded,
			Message: fmt.Sprintf("database is %s, gave up after %d retries", res, retries),
			Code:    busyCode(res),
			Err:     err,
		}
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return res, canceledError(err)
	default:
		return res, err
	}
}

func busyCode(res StepResult) int {
	if res == StepLocked {
		return codeLocked
	}
	return codeBusy
}
