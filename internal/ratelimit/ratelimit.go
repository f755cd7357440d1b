// Package ratelimit throttles public form submissions with fixed windows
// keyed by action and client IP.
package ratelimit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"realtyportal/internal/metrics"
)

// Result describes the outcome of a Check.
type Result struct {
	Success   bool
	Remaining int
	ResetAt   time.Time
}

// Store counts hits per key inside a fixed window.
type Store interface {
	// Hit increments the counter for key and returns the new count and the
	// time the current window ends. A key whose window has elapsed starts a
	// new window at now.
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (count int, resetAt time.Time, err error)
}

// Limiter applies per-action limits on top of a Store.
type Limiter struct {
	store Store
	now   func() time.Time
	log   *logrus.Entry
}

// NewLimiter creates a limiter backed by store.
func NewLimiter(store Store) *Limiter {
	return &Limiter{
		store: store,
		now:   time.Now,
		log:   logrus.WithField("component", "ratelimit"),
	}
}

// Key builds the counter key for an action and client.
func Key(identifier, clientIP string) string {
	return identifier + ":" + clientIP
}

// Check records one attempt for (identifier, clientIP) and reports whether it
// is within limit for the current window. Store failures fail open.
func (l *Limiter) Check(ctx context.Context, identifier, clientIP string, limit int, window time.Duration) Result {
	now := l.now()
	count, resetAt, err := l.store.Hit(ctx, Key(identifier, clientIP), window, now)
	if err != nil {
		l.log.WithError(err).WithField("action", identifier).Warn("Rate limit store failed, allowing request")
		return Result{Success: true, Remaining: limit - 1, ResetAt: now.Add(window)}
	}

	if count > limit {
		metrics.RecordRateLimitRejection(identifier)
		l.log.WithFields(logrus.Fields{"action": identifier, "client_ip": clientIP}).Info("Rate limit exceeded")
		return Result{Success: false, Remaining: 0, ResetAt: resetAt}
	}
	return Result{Success: true, Remaining: limit - count, ResetAt: resetAt}
}
