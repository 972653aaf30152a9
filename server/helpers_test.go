package server

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"triarena/config"
)

// fakeConn 记录收到的所有帧
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	failSend bool
}

func (f *fakeConn) Send(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnClosed
	}
	if f.failSend {
		return ErrSendQueueFull
	}
	f.frames = append(f.frames, append([]byte(nil), b...))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

// ofType 解码所有 type 匹配的帧
func (f *fakeConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, b := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func relayOptions(capacity int) RoomOptions {
	cfg := config.Default()
	return RoomOptions{
		Capacity:       capacity,
		MaxHP:          cfg.Room.MaxHP,
		AimOffsetLimit: cfg.Room.AimOffsetLimit,
		NewPolicy:      func() SimulationPolicy { return NewRelayPolicy(time.Hour) },
		Sink:           &recordingSink{},
	}
}

func simConfig() config.SimConfig {
	cfg := config.Default().Sim
	cfg.Interval = 50 * time.Millisecond
	return cfg
}

// recordingSink 同步记录生命周期事件
type recordingSink struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (s *recordingSink) Publish(ev LifecycleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// newSession 直接构造会话并注册，跳过房间协程
func newSession(reg *ConnectionRegistry, zone int, maxHP int) (*fakeConn, *PlayerSession) {
	c := &fakeConn{}
	s := NewPlayerSession(c, zone, maxHP)
	reg.Add(c, s)
	return c, s
}
