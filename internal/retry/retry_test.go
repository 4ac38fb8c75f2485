package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), TopLevel, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsPerFileBudget(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := Do(context.Background(), PerFile, func(ctx context.Context) error {
		calls++
		return sentinel
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoExhaustsTopLevelBudget(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := Do(context.Background(), TopLevel, func(ctx context.Context) error {
		calls++
		return sentinel
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoValueReturnsSuccessValue(t *testing.T) {
	v, err := DoValue(context.Background(), TopLevel, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
