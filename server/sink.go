package server

import (
	"sync"
	"sync/atomic"
	"time"
)

// 生命周期事件类型
const (
	EventRoomOpened    = "room.opened"  // Empty → Active
	EventRoomEmptied   = "room.emptied" // Active → Empty
	EventRoomClosed    = "room.closed"  // 被目录回收
	EventRoomRejected  = "room.rejected"
	EventRoomHeartbeat = "room.heartbeat"
	EventPlayerJoined  = "player.joined"
	EventPlayerLeft    = "player.left"
)

// LifecycleEvent 房间与玩家的生命周期事件，供外部（日志、NATS、Redis）消费
type LifecycleEvent struct {
	Kind      string    `json:"kind"`
	Room      string    `json:"room"`
	Policy    string    `json:"policy,omitempty"`
	PlayerID  string    `json:"playerId,omitempty"`
	Zone      *int      `json:"zone,omitempty"`
	Occupancy int       `json:"occupancy"`
	Zones     []int     `json:"zones,omitempty"`
	At        time.Time `json:"at"`
}

// LifecycleSink 事件接收方；Publish 可能做网络 I/O，房间协程不直接调用
type LifecycleSink interface {
	Publish(ev LifecycleEvent)
}

// LogSink 写入 zap 日志
type LogSink struct{}

func (LogSink) Publish(ev LifecycleEvent) {
	Log.Infow(ev.Kind, "room", ev.Room, "player", ev.PlayerID, "occupancy", ev.Occupancy, "zones", ev.Zones)
}

// MultiSink 依次分发
type MultiSink []LifecycleSink

func (m MultiSink) Publish(ev LifecycleEvent) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// AsyncSink 带缓冲的异步分发，满了直接丢弃，保证房间 Tick 不被 I/O 拖慢
type AsyncSink struct {
	next    LifecycleSink
	ch      chan LifecycleEvent
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func NewAsyncSink(next LifecycleSink, buffer int) *AsyncSink {
	s := &AsyncSink{next: next, ch: make(chan LifecycleEvent, buffer)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ev := range s.ch {
			s.next.Publish(ev)
		}
	}()
	return s
}

func (s *AsyncSink) Publish(ev LifecycleEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped 因缓冲满或已关闭而丢弃的事件数
func (s *AsyncSink) Dropped() int64 { return s.dropped.Load() }

// Close 停止接收并等待已排队事件处理完
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func intPtr(v int) *int { return &v }
