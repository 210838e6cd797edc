// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"dealgate/platform/config"
	"dealgate/platform/shared/logger"
)

const (
	minuteWindow = time.Minute
	dayWindow    = 24 * time.Hour

	// cleanupInterval is how stale an entry's lastCleanup may get before
	// its timestamp list is filtered on the next check.
	cleanupInterval = 5 * time.Minute

	// evictionInterval is how often idle entries are dropped entirely.
	evictionInterval = time.Hour
)

// Limit type identifiers carried in denial responses.
const (
	LimitUserPerMinute = "user_per_minute"
	LimitUserPerDay    = "user_per_day"
	LimitOrgPerMinute  = "org_per_minute"
	LimitOrgPerDay     = "org_per_day"
)

// ReasonRateLimited is the machine-readable reason on every denial.
const ReasonRateLimited = "rate_limited"

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed           bool   `json:"allowed"`
	Reason            string `json:"reason,omitempty"`
	LimitType         string `json:"limit_type,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
	Current           int    `json:"current,omitempty"`
	Limit             int    `json:"limit,omitempty"`
}

// Limits holds the configured ceilings for both scopes and horizons.
type Limits struct {
	UserPerMinute int
	UserPerDay    int
	OrgPerMinute  int
	OrgPerDay     int
}

// LimitsFromConfig extracts the rate-limit ceilings from the gateway config.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		UserPerMinute: cfg.UserPerMinute,
		UserPerDay:    cfg.UserPerDay,
		OrgPerMinute:  cfg.OrgPerMinute,
		OrgPerDay:     cfg.OrgPerDay,
	}
}

// NewLimiterFromConfig selects the limiter backend. AI_RATE_LIMIT_BACKEND=redis
// uses cfg.RedisURL as the connection string; any other value runs the
// in-memory limiter. A Redis connection failure falls back to memory so the
// gateway keeps serving.
func NewLimiterFromConfig(ctx context.Context, cfg *config.Config, log *logger.Logger) Limiter {
	if log == nil {
		log = logger.New("ratelimit")
	}
	limits := LimitsFromConfig(cfg)
	if cfg.RateLimitBackend == "redis" {
		redisLimiter, err := NewRedisLimiter(cfg.RedisURL, limits, log)
		if err == nil {
			log.Info("", "", "Redis rate limiting enabled", nil)
			return redisLimiter
		}
		log.Error("", "", "Redis unavailable, falling back to in-memory rate limiting",
			map[string]interface{}{"error": err.Error()})
	}
	memLimiter := NewMemoryLimiter(limits, log)
	memLimiter.Start(ctx)
	return memLimiter
}

// Limiter is the request-accounting contract the gateway depends on.
// Check never consumes quota; Record is called only after a successful
// Check and before downstream work, so aborted calls still count.
type Limiter interface {
	Check(ctx context.Context, userID, orgID string) *Decision
	Record(ctx context.Context, userID, orgID string)
}

// entry tracks one key's request timestamps, ordered oldest first.
type entry struct {
	timestamps  []time.Time
	lastCleanup time.Time
}

// scopeMap is one scope's keyed entries behind a single mutex. Check and
// Record on the same key are serialized through it.
type scopeMap struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func newScopeMap() *scopeMap {
	return &scopeMap{entries: make(map[string]*entry)}
}

// MemoryLimiter is the process-local sliding-window limiter.
type MemoryLimiter struct {
	limits Limits
	users  *scopeMap
	orgs   *scopeMap
	clock  func() time.Time
	log    *logger.Logger
}

// NewMemoryLimiter builds a limiter with the real clock.
func NewMemoryLimiter(limits Limits, log *logger.Logger) *MemoryLimiter {
	return NewMemoryLimiterWithClock(limits, log, func() time.Time { return time.Now().UTC() })
}

// NewMemoryLimiterWithClock builds a limiter with an injected clock so
// tests can advance time deterministically.
func NewMemoryLimiterWithClock(limits Limits, log *logger.Logger, clock func() time.Time) *MemoryLimiter {
	if log == nil {
		log = logger.New("ratelimit")
	}
	return &MemoryLimiter{
		limits: limits,
		users:  newScopeMap(),
		orgs:   newScopeMap(),
		clock:  clock,
		log:    log,
	}
}

// Check evaluates the four ceilings in a fixed order and returns the first
// denial: user-per-minute, user-per-day, org-per-minute, org-per-day. The
// organization scope is skipped when orgID is empty.
func (l *MemoryLimiter) Check(_ context.Context, userID, orgID string) *Decision {
	now := l.clock()

	if d := l.checkScope(l.users, userID, now, l.limits.UserPerMinute, l.limits.UserPerDay,
		LimitUserPerMinute, LimitUserPerDay); d != nil {
		return d
	}
	if orgID != "" {
		if d := l.checkScope(l.orgs, orgID, now, l.limits.OrgPerMinute, l.limits.OrgPerDay,
			LimitOrgPerMinute, LimitOrgPerDay); d != nil {
			return d
		}
	}
	return &Decision{Allowed: true}
}

// Record appends the current instant to each scope's sequence.
func (l *MemoryLimiter) Record(_ context.Context, userID, orgID string) {
	now := l.clock()
	l.record(l.users, userID, now)
	if orgID != "" {
		l.record(l.orgs, orgID, now)
	}
}

func (l *MemoryLimiter) record(sm *scopeMap, key string, now time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	e := sm.entries[key]
	if e == nil {
		e = &entry{lastCleanup: now}
		sm.entries[key] = e
	}
	e.timestamps = append(e.timestamps, now)
}

// checkScope returns nil when both horizons are within limits.
func (l *MemoryLimiter) checkScope(sm *scopeMap, key string, now time.Time,
	minuteLimit, dayLimit int, minuteType, dayType string) *Decision {

	sm.mu.Lock()
	defer sm.mu.Unlock()

	e := sm.entries[key]
	if e == nil {
		return nil
	}

	if now.Sub(e.lastCleanup) > cleanupInterval {
		e.timestamps = filterWithin(e.timestamps, now, dayWindow)
		e.lastCleanup = now
	}

	minuteCount := 0
	dayCount := 0
	var oldestInMinute, oldestInDay time.Time
	for _, ts := range e.timestamps {
		age := now.Sub(ts)
		if age < dayWindow {
			if oldestInDay.IsZero() {
				oldestInDay = ts
			}
			dayCount++
			if age < minuteWindow {
				if oldestInMinute.IsZero() {
					oldestInMinute = ts
				}
				minuteCount++
			}
		}
	}

	if minuteCount >= minuteLimit {
		return &Decision{
			Allowed:           false,
			Reason:            ReasonRateLimited,
			LimitType:         minuteType,
			RetryAfterSeconds: retryAfter(oldestInMinute, minuteWindow, now),
			Current:           minuteCount,
			Limit:             minuteLimit,
		}
	}
	if dayCount >= dayLimit {
		return &Decision{
			Allowed:           false,
			Reason:            ReasonRateLimited,
			LimitType:         dayType,
			RetryAfterSeconds: retryAfter(oldestInDay, dayWindow, now),
			Current:           dayCount,
			Limit:             dayLimit,
		}
	}
	return nil
}

// retryAfter is the whole-second wait until the oldest in-window request
// slides out of the window, never below 1.
func retryAfter(oldest time.Time, window time.Duration, now time.Time) int {
	if oldest.IsZero() {
		return 1
	}
	remaining := oldest.Add(window).Sub(now).Seconds()
	secs := int(math.Ceil(remaining))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func filterWithin(timestamps []time.Time, now time.Time, window time.Duration) []time.Time {
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if now.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}
	return kept
}

// Start launches the hourly eviction loop. The loop stops when ctx is
// cancelled; the host owns the lifecycle.
func (l *MemoryLimiter) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(evictionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				evicted := l.evictIdle()
				if evicted > 0 {
					l.log.Debug("", "", "evicted idle rate-limit entries", map[string]interface{}{
						"evicted": evicted,
					})
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// evictIdle drops entries whose newest timestamp is older than a day plus
// a minute of slack.
func (l *MemoryLimiter) evictIdle() int {
	now := l.clock()
	cutoff := dayWindow + minuteWindow
	return evictScope(l.users, now, cutoff) + evictScope(l.orgs, now, cutoff)
}

func evictScope(sm *scopeMap, now time.Time, cutoff time.Duration) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	evicted := 0
	for key, e := range sm.entries {
		if len(e.timestamps) == 0 || now.Sub(e.timestamps[len(e.timestamps)-1]) > cutoff {
			delete(sm.entries, key)
			evicted++
		}
	}
	return evicted
}
