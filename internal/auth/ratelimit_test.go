package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnforceRateLimit_Unlimited(t *testing.T) {
	allowed, err := EnforceRateLimit(context.Background(), newFakeKV(), fakeClock{time.Now()}, "tok", 0)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestEnforceRateLimit_NilKVUnenforced(t *testing.T) {
	allowed, err := EnforceRateLimit(context.Background(), nil, fakeClock{time.Now()}, "tok", 2)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestEnforceRateLimit_DeniesOverLimit(t *testing.T) {
	kv := newFakeKV()
	clock := fakeClock{time.Now()}

	allowed1, err := EnforceRateLimit(context.Background(), kv, clock, "tok", 2)
	require.NoError(t, err)
	assert.True(t, allowed1)

	allowed2, err := EnforceRateLimit(context.Background(), kv, clock, "tok", 2)
	require.NoError(t, err)
	assert.True(t, allowed2)

	allowed3, err := EnforceRateLimit(context.Background(), kv, clock, "tok", 2)
	require.NoError(t, err)
	assert.False(t, allowed3)
}

func TestEnforceRateLimit_FailOpenOnKVError(t *testing.T) {
	kv := newFakeKV()
	kv.err = assert.AnError

	allowed, err := EnforceRateLimit(context.Background(), kv, fakeClock{time.Now()}, "tok", 2)
	assert.Error(t, err)
	assert.True(t, allowed, "caller must treat a KV error as allowed (fail-open)")
}
