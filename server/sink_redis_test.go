package server

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresence(t *testing.T, ttl time.Duration) (*RedisPresence, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	p, err := NewRedisPresence(mr.Addr(), "", 0, ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return p, mr, rdb
}

func TestRedisPresenceWritesRoomHash(t *testing.T) {
	p, mr, rdb := newTestPresence(t, time.Minute)
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)

	p.Publish(LifecycleEvent{
		Kind:      EventPlayerJoined,
		Room:      "lobby",
		Policy:    "relay",
		PlayerID:  "p1",
		Zone:      intPtr(2),
		Occupancy: 2,
		Zones:     []int{0, 2},
		At:        at,
	})

	got, err := rdb.HGetAll(ctx, "arena:room:lobby").Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"occupancy":  "2",
		"zones":      "0,2",
		"policy":     "relay",
		"updated_at": strconv.FormatInt(at.UnixMilli(), 10),
	}, got)
	assert.Equal(t, time.Minute, mr.TTL("arena:room:lobby"))

	// TTL 到期后 key 消失
	mr.FastForward(time.Minute + time.Second)
	assert.False(t, mr.Exists("arena:room:lobby"))
}

func TestRedisPresenceHeartbeatRefreshesOccupancyOnly(t *testing.T) {
	p, mr, rdb := newTestPresence(t, time.Minute)
	ctx := context.Background()
	key := PresenceKey("lobby")

	p.Publish(LifecycleEvent{Kind: EventRoomOpened, Room: "lobby", Policy: "authoritative", Occupancy: 1, Zones: []int{1}, At: time.UnixMilli(1000)})
	mr.FastForward(40 * time.Second)
	assert.Equal(t, 20*time.Second, mr.TTL(key))

	p.Publish(LifecycleEvent{Kind: EventRoomHeartbeat, Room: "lobby", Occupancy: 3, Zones: []int{0, 1, 2}, At: time.UnixMilli(2000)})

	got, err := rdb.HGetAll(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "3", got["occupancy"])
	assert.Equal(t, "2000", got["updated_at"])
	assert.Equal(t, "1", got["zones"], "heartbeat keeps the last zone list")
	assert.Equal(t, "authoritative", got["policy"])
	assert.Equal(t, time.Minute, mr.TTL(key), "heartbeat renews the ttl")
}

func TestRedisPresenceDeletesOnClose(t *testing.T) {
	p, mr, _ := newTestPresence(t, time.Minute)
	key := PresenceKey("lobby")

	p.Publish(LifecycleEvent{Kind: EventPlayerJoined, Room: "lobby", Occupancy: 1, Zones: []int{0}, At: time.Now()})
	require.True(t, mr.Exists(key))

	p.Publish(LifecycleEvent{Kind: EventRoomRejected, Room: "lobby", Occupancy: 9, At: time.Now()})
	assert.Equal(t, "1", mr.HGet(key, "occupancy"), "rejections do not touch presence")

	p.Publish(LifecycleEvent{Kind: EventRoomClosed, Room: "lobby", At: time.Now()})
	assert.False(t, mr.Exists(key))
}

func TestRedisPresenceRoomsAreIndependent(t *testing.T) {
	p, mr, _ := newTestPresence(t, time.Minute)

	p.Publish(LifecycleEvent{Kind: EventPlayerJoined, Room: "a", Occupancy: 1, Zones: []int{0}, At: time.Now()})
	p.Publish(LifecycleEvent{Kind: EventPlayerJoined, Room: "b", Occupancy: 2, Zones: []int{0, 1}, At: time.Now()})
	p.Publish(LifecycleEvent{Kind: EventRoomClosed, Room: "a", At: time.Now()})

	assert.False(t, mr.Exists(PresenceKey("a")))
	assert.Equal(t, "0,1", mr.HGet(PresenceKey("b"), "zones"))
}

func TestNewRedisPresenceFailsWithoutServer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisPresence(addr, "", 0, time.Minute)
	assert.Error(t, err)
}
