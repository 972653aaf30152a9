package server

import "time"

// StepResult 一次 Tick 的产出：广播载荷与统计
type StepResult struct {
	Payload []byte
	Spawned int
	Hits    int
}

// SimulationPolicy 权威模型：决定服务端计算什么、只转发什么
type SimulationPolicy interface {
	Name() string
	Interval() time.Duration
	// Accepts 该策略是否接受某种客户端消息
	Accepts(kind string) bool
	// OnJoin 设置新会话的初始位置等
	OnJoin(p *PlayerSession, capacity int)
	// Step 推进一帧并返回快照
	Step(now time.Time, reg *ConnectionRegistry) StepResult
	// Reset 清理临时实体（房间变空时调用）
	Reset()
}

// BroadcastScheduler 按固定间隔驱动 Tick：Stopped ⇄ Running。
// 自身不开协程，C() 交给房间协程 select，保证 Tick 与消息处理串行。
type BroadcastScheduler struct {
	policy SimulationPolicy
	ticker *time.Ticker
}

func NewBroadcastScheduler(policy SimulationPolicy) *BroadcastScheduler {
	return &BroadcastScheduler{policy: policy}
}

func (s *BroadcastScheduler) Running() bool { return s.ticker != nil }

// Start 第一个玩家加入时调用，重复调用无副作用
func (s *BroadcastScheduler) Start() {
	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.policy.Interval())
}

// Stop 最后一个玩家离开时调用，同时清理策略内的临时实体
func (s *BroadcastScheduler) Stop() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
	s.policy.Reset()
}

// C 停止状态返回 nil 通道（select 永远不会选中）
func (s *BroadcastScheduler) C() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C
}

// Tick 计算快照并发送给所有会话；单个发送失败只计数，不影响其他接收者
func (s *BroadcastScheduler) Tick(now time.Time, reg *ConnectionRegistry, metrics *RoomMetrics) StepResult {
	if reg.Size() == 0 {
		return StepResult{}
	}
	res := s.policy.Step(now, reg)
	if res.Payload == nil {
		return res
	}
	reg.ForEach(func(c Conn, p *PlayerSession) {
		send(c, res.Payload, metrics)
	})
	return res
}

// send 发送即忘：错误被吞掉并计数
func send(c Conn, b []byte, metrics *RoomMetrics) bool {
	if err := c.Send(b); err != nil {
		if metrics != nil {
			metrics.IncSendFailure()
		}
		Log.Debugw("send dropped", "err", err)
		return false
	}
	return true
}
