package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemamesh/migrator/pkg/migration"
	"github.com/schemamesh/migrator/pkg/providertypes"
)

func TestExecuteRetriesTransientFailures(t *testing.T) {
	attempts := 0
	op := func() error {
		attempts++
		if attempts < 3 {
			return migration.NewTransientError(providertypes.PostgreSQL, "migrate", errors.New("reset"))
		}
		return nil
	}

	p := RetryPolicy{MaxRetryCount: 3, DelaySeconds: 1, Clock: testclock.NewDilatedWallClock(time.Millisecond)}
	err := p.Execute(context.Background(), "migrate", op)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecuteDoesNotRetryPermanentFailures(t *testing.T) {
	attempts := 0
	permanent := migration.NewPermanentError(providertypes.PostgreSQL, "migrate", errors.New("bad sql"))
	op := func() error {
		attempts++
		return permanent
	}

	p := RetryPolicy{MaxRetryCount: 5, DelaySeconds: 1, Clock: testclock.NewDilatedWallClock(time.Millisecond)}
	err := p.Execute(context.Background(), "migrate", op)
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "permanent failures must not be retried")
	assert.True(t, errors.Is(err, migration.ErrPermanent))
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	attempts := 0
	transient := migration.NewTransientError(providertypes.MySQL, "connect", errors.New("refused"))
	op := func() error {
		attempts++
		return transient
	}

	p := RetryPolicy{MaxRetryCount: 2, DelaySeconds: 1, Clock: testclock.NewDilatedWallClock(time.Millisecond)}
	err := p.Execute(context.Background(), "connect", op)
	require.Error(t, err)
	// Initial attempt plus MaxRetryCount retries.
	assert.Equal(t, 3, attempts)
	// The surfaced error is the last operation error, not a retry wrapper.
	assert.True(t, errors.Is(err, migration.ErrTransient))
}

func TestExecuteStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	op := func() error {
		attempts++
		cancel()
		return migration.NewTransientError(providertypes.MySQL, "connect", errors.New("refused"))
	}

	p := RetryPolicy{MaxRetryCount: 10, DelaySeconds: 1, Clock: testclock.NewDilatedWallClock(time.Millisecond)}
	err := p.Execute(ctx, "connect", op)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.Is(err, migration.ErrTransient))
}

func TestNormalizedClampsBounds(t *testing.T) {
	p := RetryPolicy{MaxRetryCount: 99, DelaySeconds: 0}.normalized()
	assert.Equal(t, MaxRetryCountLimit, p.MaxRetryCount)
	assert.Equal(t, MinDelaySeconds, p.DelaySeconds)

	p = RetryPolicy{MaxRetryCount: -1, DelaySeconds: 500}.normalized()
	assert.Equal(t, 0, p.MaxRetryCount)
	assert.Equal(t, MaxDelaySeconds, p.DelaySeconds)
	assert.NotNil(t, p.Clock)
}
