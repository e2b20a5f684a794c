package classify

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

// RetryPolicy retries transient oracle failures. Attempt n (0-based) is
// followed by a wait of 2^(n+1)*Base plus up to Base of jitter.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	d := p.Base << uint(attempt+1)
	return d + time.Duration(rand.Int64N(int64(p.Base)))
}

// do runs fn until it succeeds, fails with a non-retryable error, or the
// policy is exhausted. Exhaustion is reported as ErrRetryFailed wrapping the
// last error.
func (p RetryPolicy) do(ctx context.Context, log *logrus.Entry, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !utils.IsRetryableOracleError(err) {
			return err
		}
		log.WithFields(logrus.Fields{
			"attempt":    attempt + 1,
			"of":         p.MaxRetries + 1,
			"error_type": utils.CategorizeError(err),
		}).Warnf("Oracle attempt failed: %v", err)
		if attempt == p.MaxRetries {
			break
		}
		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}
