// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"

	"dealgate/platform/shared/logger"
)

// RedisLimiter is the distributed sliding-window limiter. Each scope key is
// a sorted set of request instants scored by unix nanoseconds; counting and
// trimming run in a single pipeline. On any Redis error the limiter fails
// open and logs, matching the availability-over-strictness bias of the
// in-memory fallback path.
type RedisLimiter struct {
	client *redis.Client
	limits Limits
	clock  func() time.Time
	log    *logger.Logger
}

// NewRedisLimiter connects to Redis and verifies the connection.
func NewRedisLimiter(redisURL string, limits Limits, log *logger.Logger) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if log == nil {
		log = logger.New("ratelimit")
	}

	return &RedisLimiter{
		client: client,
		limits: limits,
		clock:  func() time.Time { return time.Now().UTC() },
		log:    log,
	}, nil
}

// NewRedisLimiterWithClient builds a limiter around an existing client.
// Used by tests with miniredis.
func NewRedisLimiterWithClient(client *redis.Client, limits Limits, log *logger.Logger) *RedisLimiter {
	if log == nil {
		log = logger.New("ratelimit")
	}
	return &RedisLimiter{
		client: client,
		limits: limits,
		clock:  func() time.Time { return time.Now().UTC() },
		log:    log,
	}
}

func userKey(userID string) string { return "ratelimit:user:" + userID }
func orgKey(orgID string) string   { return "ratelimit:org:" + orgID }

// Check evaluates ceilings in the same order as the in-memory limiter.
func (l *RedisLimiter) Check(ctx context.Context, userID, orgID string) *Decision {
	now := l.clock()

	if d := l.checkKey(ctx, userKey(userID), now, l.limits.UserPerMinute, l.limits.UserPerDay,
		LimitUserPerMinute, LimitUserPerDay); d != nil {
		return d
	}
	if orgID != "" {
		if d := l.checkKey(ctx, orgKey(orgID), now, l.limits.OrgPerMinute, l.limits.OrgPerDay,
			LimitOrgPerMinute, LimitOrgPerDay); d != nil {
			return d
		}
	}
	return &Decision{Allowed: true}
}

// Record appends the current instant to each scope's sorted set.
func (l *RedisLimiter) Record(ctx context.Context, userID, orgID string) {
	now := l.clock()
	l.recordKey(ctx, userKey(userID), now)
	if orgID != "" {
		l.recordKey(ctx, orgKey(orgID), now)
	}
}

func (l *RedisLimiter) recordKey(ctx context.Context, key string, now time.Time) {
	pipe := l.client.Pipeline()
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	// Keys self-expire a little past the longest window.
	pipe.Expire(ctx, key, dayWindow+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn("", "", "failed to record rate-limit event", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func (l *RedisLimiter) checkKey(ctx context.Context, key string, now time.Time,
	minuteLimit, dayLimit int, minuteType, dayType string) *Decision {

	dayFloor := now.Add(-dayWindow).UnixNano()
	minuteFloor := now.Add(-minuteWindow).UnixNano()

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", dayFloor))
	dayCard := pipe.ZCard(ctx, key)
	minuteCount := pipe.ZCount(ctx, key, fmt.Sprintf("%d", minuteFloor), "+inf")
	minuteOldest := pipe.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", minuteFloor), Max: "+inf", Count: 1,
	})
	dayOldest := pipe.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", dayFloor), Max: "+inf", Count: 1,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: a broken backend must not take the product down.
		l.log.Warn("", "", "rate-limit check failed, failing open", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil
	}

	if int(minuteCount.Val()) >= minuteLimit {
		return &Decision{
			Allowed:           false,
			Reason:            ReasonRateLimited,
			LimitType:         minuteType,
			RetryAfterSeconds: retryAfterNanos(minuteOldest.Val(), minuteWindow, now),
			Current:           int(minuteCount.Val()),
			Limit:             minuteLimit,
		}
	}
	if int(dayCard.Val()) >= dayLimit {
		return &Decision{
			Allowed:           false,
			Reason:            ReasonRateLimited,
			LimitType:         dayType,
			RetryAfterSeconds: retryAfterNanos(dayOldest.Val(), dayWindow, now),
			Current:           int(dayCard.Val()),
			Limit:             dayLimit,
		}
	}
	return nil
}

// retryAfterNanos converts the oldest member of a window (stored as a nanos
// string) to a whole-second wait.
func retryAfterNanos(members []string, window time.Duration, now time.Time) int {
	if len(members) == 0 {
		return 1
	}
	var nanos int64
	if _, err := fmt.Sscanf(members[0], "%d", &nanos); err != nil {
		return 1
	}
	oldest := time.Unix(0, nanos)
	remaining := oldest.Add(window).Sub(now).Seconds()
	secs := int(math.Ceil(remaining))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Close releases the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
