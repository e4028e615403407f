package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles URL fetches globally, per target domain and per caller scope
type RateLimiter struct {
	global    *rate.Limiter
	domains   sync.Map // domain -> *rate.Limiter
	scopes    sync.Map // scope -> *rate.Limiter
	scopeRate rate.Limit
}

// NewRateLimiter creates a limiter with the given global and per-scope request rates
func NewRateLimiter(globalRate, perScopeRate float64) *RateLimiter {
	return &RateLimiter{
		global:    rate.NewLimiter(rate.Limit(globalRate), int(globalRate*2)),
		scopeRate: rate.Limit(perScopeRate),
	}
}

// Wait blocks until a fetch of domain on behalf of scope is allowed.
// crawlDelay comes from robots.txt and sets the domain's pace on first sight.
func (rl *RateLimiter) Wait(ctx context.Context, scope, domain string, crawlDelay time.Duration) error {
	if err := rl.global.Wait(ctx); err != nil {
		return err
	}
	if err := rl.domainLimiter(domain, crawlDelay).Wait(ctx); err != nil {
		return err
	}
	return rl.scopeLimiter(scope).Wait(ctx)
}

func (rl *RateLimiter) domainLimiter(domain string, crawlDelay time.Duration) *rate.Limiter {
	if limiter, ok := rl.domains.Load(domain); ok {
		return limiter.(*rate.Limiter)
	}

	perSecond := 2.0
	if crawlDelay > 0 {
		perSecond = 1.0 / crawlDelay.Seconds()
	}
	// clamp to [1 per 5s, 5 per s]
	if perSecond > 5.0 {
		perSecond = 5.0
	}
	if perSecond < 0.2 {
		perSecond = 0.2
	}

	actual, _ := rl.domains.LoadOrStore(domain, rate.NewLimiter(rate.Limit(perSecond), 1))
	return actual.(*rate.Limiter)
}

func (rl *RateLimiter) scopeLimiter(scope string) *rate.Limiter {
	if limiter, ok := rl.scopes.Load(scope); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := rl.scopes.LoadOrStore(scope, rate.NewLimiter(rl.scopeRate, int(rl.scopeRate*2)+1))
	return actual.(*rate.Limiter)
}
