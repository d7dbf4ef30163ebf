package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var errSubmissionInFlight = errors.New("submission already in progress")

// SubmitGuard keeps one state-changing request per player and location
// in flight. The database constraints stay authoritative; the guard only
// turns double taps into a quick 409.
type SubmitGuard interface {
	Acquire(ctx context.Context, playerID, locationID string) (release func(), err error)
}

type noopGuard struct{}

func (noopGuard) Acquire(context.Context, string, string) (func(), error) { return func() {}, nil }

// releaseScript deletes the key only while it still holds the caller's
// token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type guardClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// RedisGuard holds a short-lived SETNX key per pair. Redis errors let
// the request through.
type RedisGuard struct {
	client guardClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisGuard(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl, logger: logger}
}

func guardKey(playerID, locationID string) string {
	return "hunt:submit:" + playerID + ":" + locationID
}

func (g *RedisGuard) Acquire(ctx context.Context, playerID, locationID string) (func(), error) {
	key := guardKey(playerID, locationID)
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		g.logger.Warn("submit guard unavailable", "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, errSubmissionInFlight
	}
	return func() {
		n, err := g.client.Eval(context.WithoutCancel(ctx), releaseScript, []string{key}, token).Int()
		if err != nil {
			g.logger.Warn("releasing submit guard", "key", key, "error", err)
			return
		}
		if n == 0 {
			g.logger.Debug("submit guard expired before release", "key", key)
		}
	}, nil
}
