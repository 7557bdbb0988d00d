package ws

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Faisal123786/MeetVideoCallP2P/internal/app"
	"github.com/Faisal123786/MeetVideoCallP2P/internal/signal"
)

// RedisEvents mirrors room lifecycle events to redis pub/sub so ops tooling
// can watch live rooms. Fire-and-forget: a publish failure never touches
// signaling state.
type RedisEvents struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisEvents connects to redis and verifies connectivity
func NewRedisEvents(ctx context.Context, cfg app.Config, log *slog.Logger) (*RedisEvents, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisEvents{rdb: rdb, log: log}, nil
}

// Publish sends one lifecycle record to the room's channel. It hands the
// write off to a goroutine so the broker loop never waits on redis.
func (b *RedisEvents) Publish(ev signal.RoomEvent) {
	raw, _ := json.Marshal(ev)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := b.rdb.Publish(ctx, channel(ev.Room), raw).Err(); err != nil {
			b.log.Debug("redis.publish", "room", ev.Room, "err", err)
		}
	}()
}

// Close shuts down the redis connection
func (b *RedisEvents) Close() { _ = b.rdb.Close() }

// channel namespacing for room pub/sub
func channel(roomID string) string { return "room:" + roomID }
