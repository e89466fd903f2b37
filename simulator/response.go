package simulator

import (
	"context"
	"time"

	"github.com/kilianp07/autoaid/core/offer"
)

// ResponseStrategy decides how a mechanic answers an offer. It returns
// false when the offer is ignored.
type ResponseStrategy interface {
	Decide(ctx context.Context, n offer.Notification) (offer.Decision, bool)
}

// AutoAccept accepts every offer after an optional fixed delay.
type AutoAccept struct {
	Delay time.Duration
}

// Decide implements ResponseStrategy.
func (a AutoAccept) Decide(ctx context.Context, _ offer.Notification) (offer.Decision, bool) {
	if !wait(ctx, a.Delay) {
		return "", false
	}
	return offer.Accept, true
}

// RandomResponse ignores offers with DropRate probability and declines
// with DeclineRate probability, after waiting Delay.
type RandomResponse struct {
	Delay       time.Duration
	DeclineRate float64
	DropRate    float64
}

// Decide implements ResponseStrategy.
func (r RandomResponse) Decide(ctx context.Context, _ offer.Notification) (offer.Decision, bool) {
	if r.DropRate > 0 && randFloat() < r.DropRate {
		return "", false
	}
	if !wait(ctx, r.Delay) {
		return "", false
	}
	if r.DeclineRate > 0 && randFloat() < r.DeclineRate {
		return offer.Decline, true
	}
	return offer.Accept, true
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
