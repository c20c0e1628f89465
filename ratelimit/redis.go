package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "guildmind:ratelimit"

// KEYS[1] sorted set of admission times (ms); ARGV: now, window, max, member.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local max = tonumber(ARGV[3])

	redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
	if redis.call("ZCARD", key) >= max then
		return 0
	end
	redis.call("ZADD", key, now, ARGV[4])
	redis.call("PEXPIRE", key, window)
	return 1
`)

// Redis shares windows across processes through a sorted set per pair.
// When Redis is unreachable the limiter admits and logs.
type Redis struct {
	client redis.UniversalClient
	cfg    Config
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

type RedisOptions struct {
	Prefix string
	Logger *slog.Logger
	Now    func() time.Time
}

func NewRedis(client redis.UniversalClient, cfg Config, opts RedisOptions) *Redis {
	r := &Redis{
		client: client,
		cfg:    cfg.normalized(),
		prefix: strings.TrimSpace(opts.Prefix),
		logger: opts.Logger,
		now:    opts.Now,
	}
	if r.prefix == "" {
		r.prefix = DefaultRedisPrefix
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Redis) Admit(ctx context.Context, tenantID, userID string) bool {
	if r.cfg.MaxPrompts <= 0 {
		return true
	}
	key := r.key(tenantID, userID)
	now := r.now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, r.client, []string{key},
		now, r.cfg.Window.Milliseconds(), r.cfg.MaxPrompts, uuid.NewString()).Int()
	if err != nil {
		r.logger.Warn("ratelimit_redis_error", "key", key, "error", err.Error())
		return true
	}
	return res == 1
}

func (r *Redis) key(tenantID, userID string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, strings.TrimSpace(tenantID), strings.TrimSpace(userID))
}
