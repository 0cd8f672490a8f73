package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/notifyhub/step-engine/internal/domain"
)

// StepLimiters holds one token bucket per step type so a slow provider on
// one channel cannot starve the others. Burst equals the rate: no credit
// is saved up above the per-second maximum.
type StepLimiters struct {
	limiters map[domain.StepType]*rate.Limiter
}

// New creates limiters granting ratePerSec tokens per second to each step
// type. A non-positive rate disables limiting.
func New(ratePerSec int) *StepLimiters {
	sl := &StepLimiters{limiters: make(map[domain.StepType]*rate.Limiter)}
	if ratePerSec <= 0 {
		return sl
	}
	for _, t := range []domain.StepType{
		domain.StepSMS, domain.StepEmail, domain.StepInApp, domain.StepChat,
		domain.StepPush, domain.StepDigest, domain.StepDelay,
	} {
		sl.limiters[t] = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return sl
}

// Wait blocks until t's limiter grants a token. Step types without a
// limiter pass straight through. The error is non-nil only when ctx ends
// first.
func (sl *StepLimiters) Wait(ctx context.Context, t domain.StepType) error {
	l, ok := sl.limiters[t]
	if !ok {
		return ctx.Err()
	}
	return l.Wait(ctx)
}
