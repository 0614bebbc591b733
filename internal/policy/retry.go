// Package policy provides the reusable cross-cutting policies the
// orchestrator applies around plugin invocations: retry-with-backoff for
// transient failures and the pre-migration backup safety net.
package policy

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/schemamesh/migrator/pkg/logger"
	"github.com/schemamesh/migrator/pkg/migration"
)

// Retry bounds.
const (
	MaxRetryCountLimit = 10
	MinDelaySeconds    = 1
	MaxDelaySeconds    = 30
)

// RetryPolicy controls how transient failures are retried. Validation
// failures are never retried: retrying a deterministic failure is wasted
// work, so errors are classified at the plugin boundary before any retry
// decision.
type RetryPolicy struct {
	MaxRetryCount int
	DelaySeconds  int
	Exponential   bool

	// Clock is injectable for tests; nil means the wall clock.
	Clock clock.Clock

	Log *logger.Logger
}

// normalized clamps the policy to its supported ranges.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetryCount < 0 {
		p.MaxRetryCount = 0
	}
	if p.MaxRetryCount > MaxRetryCountLimit {
		p.MaxRetryCount = MaxRetryCountLimit
	}
	if p.DelaySeconds < MinDelaySeconds {
		p.DelaySeconds = MinDelaySeconds
	}
	if p.DelaySeconds > MaxDelaySeconds {
		p.DelaySeconds = MaxDelaySeconds
	}
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	return p
}

// Execute runs op, retrying transient-classified failures up to
// MaxRetryCount times with the configured delay (doubled each attempt when
// Exponential). Permanent failures and context cancellation stop
// immediately.
func (p RetryPolicy) Execute(ctx context.Context, operation string, op func() error) error {
	np := p.normalized()

	args := retry.CallArgs{
		Func: op,
		IsFatalError: func(err error) bool {
			return !migration.IsTransient(err)
		},
		Attempts: np.MaxRetryCount + 1,
		Delay:    time.Duration(np.DelaySeconds) * time.Second,
		Clock:    np.Clock,
		Stop:     ctx.Done(),
	}
	if np.Exponential {
		args.BackoffFunc = retry.DoubleDelay
	}
	if np.Log != nil {
		args.NotifyFunc = func(lastError error, attempt int) {
			np.Log.Warnf("%s attempt %d failed, will retry: %v", operation, attempt, lastError)
		}
	}

	err := retry.Call(args)
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		return retry.LastError(err)
	}
	return err
}
