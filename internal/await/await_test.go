package await

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilReturnsOnFirstSuccess(t *testing.T) {
	calls := 0
	cond := Cond("instant", func(context.Context) (bool, error) {
		calls++
		return true, nil
	})

	err := Until(context.Background(), cond, time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUntilEvaluatesExactlyRetriesPlusOne(t *testing.T) {
	const retries = 4
	calls := 0
	cond := Cond("eventually", func(context.Context) (bool, error) {
		calls++
		return calls > retries, nil
	})

	err := Until(context.Background(), cond, time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, retries+1, calls)
}

func TestUntilTimesOut(t *testing.T) {
	cond := Cond("never", func(context.Context) (bool, error) {
		return false, nil
	})

	timeout := 50 * time.Millisecond
	interval := 10 * time.Millisecond
	start := time.Now()
	err := Until(context.Background(), cond, timeout, interval)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConditionTimeout))
	assert.Contains(t, err.Error(), `"never"`)
	// Bounded by the timeout plus at most one extra interval, with slack for
	// scheduler noise.
	assert.Less(t, elapsed, timeout+interval+100*time.Millisecond)
}

func TestUntilPropagatesEvalError(t *testing.T) {
	hard := errors.New("boom")
	calls := 0
	cond := Cond("failing", func(context.Context) (bool, error) {
		calls++
		return false, hard
	})

	err := Until(context.Background(), cond, time.Second, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, hard))
	assert.Equal(t, 1, calls)
	assert.False(t, errors.Is(err, ErrConditionTimeout))
}

func TestUntilHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cond := Cond("cancelled", func(context.Context) (bool, error) {
		cancel()
		return false, nil
	})

	err := Until(ctx, cond, time.Minute, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
