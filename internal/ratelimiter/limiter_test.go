package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/step-engine/internal/domain"
	"github.com/notifyhub/step-engine/internal/ratelimiter"
)

func TestStepLimiters_BurstThenBlock(t *testing.T) {
	l := ratelimiter.New(2)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, domain.StepSMS))
	require.NoError(t, l.Wait(ctx, domain.StepSMS))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(short, domain.StepSMS), "third token within the same second must wait")
}

func TestStepLimiters_TypesAreIndependent(t *testing.T) {
	l := ratelimiter.New(1)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, domain.StepSMS))
	require.NoError(t, l.Wait(ctx, domain.StepEmail))
}

func TestStepLimiters_Disabled(t *testing.T) {
	l := ratelimiter.New(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), domain.StepPush))
	}
}

func TestStepLimiters_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, ratelimiter.New(0).Wait(ctx, domain.StepType("custom")))
}
