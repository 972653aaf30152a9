package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 2 * time.Second

// RedisPresence 把房间占用情况写成 Redis hash，供其他进程查询
// key: arena:room:<name>，TTL 由心跳续期
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPresence(addr, password string, db int, ttl time.Duration) (*RedisPresence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisPresenceWithClient(client, ttl), nil
}

func NewRedisPresenceWithClient(client *redis.Client, ttl time.Duration) *RedisPresence {
	return &RedisPresence{client: client, ttl: ttl}
}

func PresenceKey(room string) string { return "arena:room:" + room }

func (p *RedisPresence) Publish(ev LifecycleEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	key := PresenceKey(ev.Room)
	var err error
	switch ev.Kind {
	case EventRoomClosed:
		err = p.client.Del(ctx, key).Err()
	case EventRoomHeartbeat:
		pipe := p.client.Pipeline()
		pipe.HSet(ctx, key, "occupancy", ev.Occupancy, "updated_at", ev.At.UnixMilli())
		pipe.Expire(ctx, key, p.ttl)
		_, err = pipe.Exec(ctx)
	case EventRoomRejected:
		return
	default:
		pipe := p.client.Pipeline()
		pipe.HSet(ctx, key,
			"occupancy", ev.Occupancy,
			"zones", joinInts(ev.Zones),
			"policy", ev.Policy,
			"updated_at", ev.At.UnixMilli(),
		)
		pipe.Expire(ctx, key, p.ttl)
		_, err = pipe.Exec(ctx)
	}
	if err != nil {
		Log.Warnw("redis presence update failed", "kind", ev.Kind, "room", ev.Room, "err", err)
	}
}

func (p *RedisPresence) Close() error {
	return p.client.Close()
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
