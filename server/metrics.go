package server

import (
	"sync/atomic"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount         int64 // 统计的 Tick 次数
	TotalTickNs       int64 // Tick 累计耗时（纳秒）
	MessagesRouted    int64 // 成功路由的客户端消息
	ProtocolErrors    int64 // 非法 JSON / 未知类型
	RelaysSent        int64 // fire/damage 转发次数（按接收者计）
	SendFailures      int64 // 单个连接发送失败（被吞掉）
	Joins             int64
	Leaves            int64
	CapacityRejected  int64 // 房间已满被拒绝的连接
	StaleInputIgnored int64 // 因旧序列被忽略的输入数
	BulletsSpawned    int64
	Hits              int64
	Panics            int64 // Tick 或消息处理中被 recover 的 panic
}

func (m *RoomMetrics) IncRouted()          { atomic.AddInt64(&m.MessagesRouted, 1) }
func (m *RoomMetrics) IncProtocolError()   { atomic.AddInt64(&m.ProtocolErrors, 1) }
func (m *RoomMetrics) AddRelays(n int)     { atomic.AddInt64(&m.RelaysSent, int64(n)) }
func (m *RoomMetrics) IncSendFailure()     { atomic.AddInt64(&m.SendFailures, 1) }
func (m *RoomMetrics) IncJoin()            { atomic.AddInt64(&m.Joins, 1) }
func (m *RoomMetrics) IncLeave()           { atomic.AddInt64(&m.Leaves, 1) }
func (m *RoomMetrics) IncRejected()        { atomic.AddInt64(&m.CapacityRejected, 1) }
func (m *RoomMetrics) IncStaleInput()      { atomic.AddInt64(&m.StaleInputIgnored, 1) }
func (m *RoomMetrics) IncBulletsSpawned()  { atomic.AddInt64(&m.BulletsSpawned, 1) }
func (m *RoomMetrics) IncHits()            { atomic.AddInt64(&m.Hits, 1) }
func (m *RoomMetrics) IncPanics()          { atomic.AddInt64(&m.Panics, 1) }
func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":          tick,
		"avg_tick_ms":         avgMs,
		"messages_routed":     atomic.LoadInt64(&m.MessagesRouted),
		"protocol_errors":     atomic.LoadInt64(&m.ProtocolErrors),
		"relays_sent":         atomic.LoadInt64(&m.RelaysSent),
		"send_failures":       atomic.LoadInt64(&m.SendFailures),
		"joins":               atomic.LoadInt64(&m.Joins),
		"leaves":              atomic.LoadInt64(&m.Leaves),
		"capacity_rejected":   atomic.LoadInt64(&m.CapacityRejected),
		"stale_input_ignored": atomic.LoadInt64(&m.StaleInputIgnored),
		"bullets_spawned":     atomic.LoadInt64(&m.BulletsSpawned),
		"hits":                atomic.LoadInt64(&m.Hits),
		"panics":              atomic.LoadInt64(&m.Panics),
	}
}
