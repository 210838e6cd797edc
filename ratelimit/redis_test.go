// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealgate/platform/config"
)

func TestNewLimiterFromConfig_BackendSelection(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name      string
		backend   string
		redisURL  string
		wantRedis bool
	}{
		{"memory backend ignores redis url", "memory", "redis://" + mr.Addr(), false},
		{"redis backend", "redis", "redis://" + mr.Addr(), true},
		{"redis backend unreachable falls back", "redis", "redis://127.0.0.1:0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Load()
			cfg.RateLimitBackend = tt.backend
			cfg.RedisURL = tt.redisURL

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			limiter := NewLimiterFromConfig(ctx, cfg, nil)
			_, isRedis := limiter.(*RedisLimiter)
			assert.Equal(t, tt.wantRedis, isRedis)
		})
	}
}

func newRedisTestLimiter(t *testing.T, limits Limits) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiterWithClient(client, limits, nil), mr
}

func TestRedisLimiter_AllowsUnderLimit(t *testing.T) {
	l, _ := newRedisTestLimiter(t, Limits{UserPerMinute: 5, UserPerDay: 200, OrgPerMinute: 500, OrgPerDay: 5000})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.True(t, l.Check(ctx, "u1", "org1").Allowed)
		l.Record(ctx, "u1", "org1")
	}
	assert.True(t, l.Check(ctx, "u1", "org1").Allowed)
}

func TestRedisLimiter_UserMinuteBurst(t *testing.T) {
	l, _ := newRedisTestLimiter(t, Limits{UserPerMinute: 2, UserPerDay: 200, OrgPerMinute: 500, OrgPerDay: 5000})
	ctx := context.Background()

	l.Record(ctx, "u1", "org1")
	l.Record(ctx, "u1", "org1")
	l.Record(ctx, "u1", "org1")

	d := l.Check(ctx, "u1", "org1")
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonRateLimited, d.Reason)
	assert.Equal(t, LimitUserPerMinute, d.LimitType)
	assert.LessOrEqual(t, d.RetryAfterSeconds, 60)
	assert.GreaterOrEqual(t, d.RetryAfterSeconds, 1)
}

func TestRedisLimiter_WindowSlidesWithClock(t *testing.T) {
	l, _ := newRedisTestLimiter(t, Limits{UserPerMinute: 2, UserPerDay: 200, OrgPerMinute: 500, OrgPerDay: 5000})
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return base }

	l.Record(ctx, "u1", "")
	l.Record(ctx, "u1", "")
	require.False(t, l.Check(ctx, "u1", "").Allowed)

	l.clock = func() time.Time { return base.Add(61 * time.Second) }
	assert.True(t, l.Check(ctx, "u1", "").Allowed)
}

func TestRedisLimiter_OrgScopeSharedAcrossUsers(t *testing.T) {
	l, _ := newRedisTestLimiter(t, Limits{UserPerMinute: 100, UserPerDay: 1000, OrgPerMinute: 3, OrgPerDay: 5000})
	ctx := context.Background()

	l.Record(ctx, "u1", "org1")
	l.Record(ctx, "u2", "org1")
	l.Record(ctx, "u3", "org1")

	d := l.Check(ctx, "u4", "org1")
	require.False(t, d.Allowed)
	assert.Equal(t, LimitOrgPerMinute, d.LimitType)
	assert.True(t, l.Check(ctx, "u4", "org2").Allowed)
}

func TestRedisLimiter_FailsOpenWhenBackendDown(t *testing.T) {
	l, mr := newRedisTestLimiter(t, Limits{UserPerMinute: 1, UserPerDay: 1, OrgPerMinute: 1, OrgPerDay: 1})
	ctx := context.Background()

	l.Record(ctx, "u1", "org1")
	require.False(t, l.Check(ctx, "u1", "org1").Allowed)

	mr.Close()

	d := l.Check(ctx, "u1", "org1")
	assert.True(t, d.Allowed)
}

func TestRedisLimiter_KeysExpire(t *testing.T) {
	l, mr := newRedisTestLimiter(t, Limits{UserPerMinute: 100, UserPerDay: 1000, OrgPerMinute: 500, OrgPerDay: 5000})
	ctx := context.Background()

	l.Record(ctx, "u1", "org1")
	require.True(t, mr.Exists(userKey("u1")))
	require.True(t, mr.Exists(orgKey("org1")))

	mr.FastForward(dayWindow + 2*time.Hour)
	assert.False(t, mr.Exists(userKey("u1")))
	assert.False(t, mr.Exists(orgKey("org1")))
}
