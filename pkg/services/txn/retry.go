package txn

import (
	"context"
	"time"

	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/sirupsen/logrus"
)

// Retrier re-runs an operation that failed with a transient StoreError
type Retrier struct {
	Attempts int
	Backoff  time.Duration // Multiplied by the attempt number
	Log      *logging.Logger
}

// NoRetry runs every operation exactly once
var NoRetry = Retrier{Attempts: 1}

// Do runs fn until it succeeds, fails with a non-transient error, or the
// attempts run out. fn's error is translated before it is inspected.
func (r Retrier) Do(ctx context.Context, op string, fn func() error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = Translate(fn())
		if err == nil || !types.IsTransient(err) || attempt == attempts {
			return err
		}

		if r.Log != nil {
			r.Log.WithFields(logrus.Fields{
				"operation": op,
				"attempt":   attempt,
			}).WithError(err).Warn("transient store error, retrying")
		}

		select {
		case <-ctx.Done():
			return Translate(ctx.Err())
		case <-time.After(r.Backoff * time.Duration(attempt)):
		}
	}
	return err
}
