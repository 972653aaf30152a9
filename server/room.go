package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// RoomOptions 房间规则与外部协作者
type RoomOptions struct {
	Capacity       int
	MaxHP          int
	AimOffsetLimit float64
	NewPolicy      func() SimulationPolicy
	Sink           LifecycleSink
}

// 房间协程的入站命令
type joinCmd struct {
	conn  Conn
	reply chan joinResult
}

type joinResult struct {
	state PlayerState
	err   error
}

type messageCmd struct {
	conn    Conn
	payload []byte
}

type leaveCmd struct {
	conn Conn
}

type inspectCmd struct {
	reply chan RoomInfo
}

// tickCmd 手动推进一帧（测试与调试）
type tickCmd struct {
	now  time.Time
	done chan StepResult
}

// RoomInfo 房间只读视图
type RoomInfo struct {
	Name      string        `json:"room"`
	Policy    string        `json:"policy"`
	Running   bool          `json:"running"`
	Occupancy int           `json:"occupancy"`
	Zones     []int         `json:"zones"`
	Players   []PlayerState `json:"players"`
}

// Room 房间会话：独占 ZoneAllocator / ConnectionRegistry / BroadcastScheduler / MessageRouter。
// 所有状态只在 Run 协程中修改，消息处理与 Tick 串行。
type Room struct {
	Name string

	opts      RoomOptions
	policy    SimulationPolicy
	zones     *ZoneAllocator
	registry  *ConnectionRegistry
	scheduler *BroadcastScheduler
	router    *MessageRouter
	metrics   *RoomMetrics

	inbox     chan any
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// seats 预留 + 在线人数，-1 表示已关闭；在升级 WebSocket 前占座，保证不会超员
	seats      atomic.Int32
	emptySince atomic.Int64 // 最近一次变空的时间（UnixNano），0 表示有人
}

// NewRoom 创建房间，初始化数据结构（不启动协程）
func NewRoom(name string, opts RoomOptions) *Room {
	if opts.Sink == nil {
		opts.Sink = LogSink{}
	}
	policy := opts.NewPolicy()
	metrics := &RoomMetrics{}
	r := &Room{
		Name:      name,
		opts:      opts,
		policy:    policy,
		zones:     NewZoneAllocator(opts.Capacity),
		registry:  NewConnectionRegistry(),
		scheduler: NewBroadcastScheduler(policy),
		router:    NewMessageRouter(policy, opts.AimOffsetLimit, metrics),
		metrics:   metrics,
		inbox:     make(chan any, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	r.emptySince.Store(time.Now().UnixNano())
	return r
}

func (r *Room) Metrics() *RoomMetrics { return r.metrics }
func (r *Room) PolicyName() string    { return r.policy.Name() }

// Seats 当前占座数（含尚未完成握手的预留）
func (r *Room) Seats() int {
	n := r.seats.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Reserve 在升级前占一个座位；已满返回 ErrRoomFull
func (r *Room) Reserve() error {
	for {
		n := r.seats.Load()
		if n < 0 {
			return ErrRoomClosed
		}
		if int(n) >= r.opts.Capacity {
			r.metrics.IncRejected()
			return ErrRoomFull
		}
		if r.seats.CompareAndSwap(n, n+1) {
			r.emptySince.Store(0)
			return nil
		}
	}
}

// CancelReservation 升级失败时归还座位
func (r *Room) CancelReservation() {
	r.releaseSeat()
}

func (r *Room) releaseSeat() {
	if r.seats.Add(-1) == 0 {
		r.emptySince.Store(time.Now().UnixNano())
	}
}

// idleFor 空房间已持续多久；有人时返回 0
func (r *Room) idleFor(now time.Time) time.Duration {
	since := r.emptySince.Load()
	if since == 0 || r.seats.Load() != 0 {
		return 0
	}
	return now.Sub(time.Unix(0, since))
}

// tryClose 仅当没有任何座位时关闭房间
func (r *Room) tryClose() bool {
	if !r.seats.CompareAndSwap(0, -1) {
		return false
	}
	r.closeOnce.Do(func() { close(r.quit) })
	return true
}

// Close 强制关闭（进程退出时），断开所有连接
func (r *Room) Close() {
	r.seats.Store(-1)
	r.closeOnce.Do(func() { close(r.quit) })
	<-r.done
}

// Join 在已占座的前提下创建会话；返回分配的玩家状态
func (r *Room) Join(c Conn) (PlayerState, error) {
	reply := make(chan joinResult, 1)
	select {
	case r.inbox <- joinCmd{conn: c, reply: reply}:
	case <-r.quit:
		return PlayerState{}, ErrRoomClosed
	}
	select {
	case res := <-reply:
		return res.state, res.err
	case <-r.done:
		return PlayerState{}, ErrRoomClosed
	}
}

// Deliver 投递一条客户端消息（读协程调用）
func (r *Room) Deliver(c Conn, payload []byte) {
	select {
	case r.inbox <- messageCmd{conn: c, payload: payload}:
	case <-r.quit:
	}
}

// Leave 请求在房间协程中移除会话；关闭与出错路径都会调用，重复调用无副作用
func (r *Room) Leave(c Conn) {
	select {
	case r.inbox <- leaveCmd{conn: c}:
	case <-r.quit:
	}
}

// Info 房间只读快照
func (r *Room) Info() RoomInfo {
	reply := make(chan RoomInfo, 1)
	select {
	case r.inbox <- inspectCmd{reply: reply}:
	case <-r.quit:
		return RoomInfo{Name: r.Name, Policy: r.policy.Name(), Zones: []int{}, Players: []PlayerState{}}
	}
	select {
	case info := <-reply:
		return info
	case <-r.done:
		return RoomInfo{Name: r.Name, Policy: r.policy.Name(), Zones: []int{}, Players: []PlayerState{}}
	}
}

// Step 在房间协程中手动推进一帧，与定时 Tick 走同一路径
func (r *Room) Step(now time.Time) (StepResult, error) {
	done := make(chan StepResult, 1)
	select {
	case r.inbox <- tickCmd{now: now, done: done}:
	case <-r.quit:
		return StepResult{}, ErrRoomClosed
	}
	select {
	case res := <-done:
		return res, nil
	case <-r.done:
		return StepResult{}, ErrRoomClosed
	}
}

// Run 房间主循环：入站命令与 Tick 在同一协程串行处理
func (r *Room) Run() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			r.shutdown()
			return
		case cmd := <-r.inbox:
			r.handleCommand(cmd)
		case now := <-r.scheduler.C():
			r.tick(now)
		}
	}
}

func (r *Room) handleCommand(cmd any) {
	defer r.recoverPanic("command")
	switch c := cmd.(type) {
	case joinCmd:
		state, err := r.join(c.conn)
		c.reply <- joinResult{state: state, err: err}
	case messageCmd:
		if s, ok := r.registry.Get(c.conn); ok {
			if err := r.router.Route(r.registry, s, c.payload); err != nil {
				Log.Debugw("protocol error", "room", r.Name, "player", s.ID, "err", err)
			}
		}
	case leaveCmd:
		r.leave(c.conn)
	case inspectCmd:
		c.reply <- r.info()
	case tickCmd:
		c.done <- r.tick(c.now)
	}
}

func (r *Room) join(c Conn) (state PlayerState, err error) {
	zone := -1
	// 加入途中 panic：回滚分区、会话与座位，保证调用方一定收到结果
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		r.metrics.IncPanics()
		Log.Errorw("room panic recovered", "room", r.Name, "where", "join", "panic", v)
		if r.registry.Remove(c) != nil && r.registry.Size() == 0 {
			r.scheduler.Stop()
		}
		if zone >= 0 {
			r.zones.Release(zone)
		}
		r.releaseSeat()
		state, err = PlayerState{}, fmt.Errorf("join %s: %w: %v", r.Name, ErrJoinAborted, v)
	}()

	zone, err = r.zones.Allocate()
	if err != nil {
		r.releaseSeat()
		return PlayerState{}, fmt.Errorf("join %s: %w", r.Name, err)
	}
	s := NewPlayerSession(c, zone, r.opts.MaxHP)
	r.policy.OnJoin(s, r.opts.Capacity)
	r.registry.Add(c, s)
	r.metrics.IncJoin()

	send(c, encodeHello(s.ID, s.Zone), r.metrics)

	if !r.scheduler.Running() {
		r.scheduler.Start()
		r.publish(EventRoomOpened, nil)
	}
	r.publish(EventPlayerJoined, s)
	Log.Infof("player joined: room=%s player=%s zone=%d occupancy=%d", r.Name, s.ID, s.Zone, r.registry.Size())
	return s.State(), nil
}

func (r *Room) leave(c Conn) {
	s := r.registry.Remove(c)
	if s == nil {
		return
	}
	r.zones.Release(s.Zone)
	_ = c.Close()
	r.metrics.IncLeave()
	r.releaseSeat()
	r.publish(EventPlayerLeft, s)
	Log.Infof("player left: room=%s player=%s zone=%d occupancy=%d", r.Name, s.ID, s.Zone, r.registry.Size())

	if r.registry.Size() == 0 {
		r.scheduler.Stop()
		r.publish(EventRoomEmptied, nil)
	}
}

func (r *Room) tick(now time.Time) StepResult {
	defer r.recoverPanic("tick")
	start := time.Now()
	res := r.scheduler.Tick(now, r.registry, r.metrics)
	for i := 0; i < res.Spawned; i++ {
		r.metrics.IncBulletsSpawned()
	}
	for i := 0; i < res.Hits; i++ {
		r.metrics.IncHits()
	}
	r.metrics.AddTick(time.Since(start).Nanoseconds())
	return res
}

// recoverPanic 单个房间的异常不能影响其他房间与监听
func (r *Room) recoverPanic(where string) {
	if v := recover(); v != nil {
		r.metrics.IncPanics()
		Log.Errorw("room panic recovered", "room", r.Name, "where", where, "panic", v)
	}
}

func (r *Room) info() RoomInfo {
	info := RoomInfo{
		Name:      r.Name,
		Policy:    r.policy.Name(),
		Running:   r.scheduler.Running(),
		Occupancy: r.registry.Size(),
		Zones:     r.zones.Occupied(),
		Players:   make([]PlayerState, 0, r.registry.Size()),
	}
	r.registry.ForEach(func(_ Conn, s *PlayerSession) {
		info.Players = append(info.Players, s.State())
	})
	return info
}

func (r *Room) publish(kind string, s *PlayerSession) {
	ev := LifecycleEvent{
		Kind:      kind,
		Room:      r.Name,
		Policy:    r.policy.Name(),
		Occupancy: r.registry.Size(),
		Zones:     r.zones.Occupied(),
		At:        time.Now(),
	}
	if s != nil {
		ev.PlayerID = s.ID
		ev.Zone = intPtr(s.Zone)
	}
	r.opts.Sink.Publish(ev)
}

// shutdown 房间关闭：断开剩余连接并清理
func (r *Room) shutdown() {
	r.registry.ForEach(func(c Conn, s *PlayerSession) {
		r.zones.Release(s.Zone)
		_ = c.Close()
	})
	r.registry.Clear()
	r.scheduler.Stop()
	r.publish(EventRoomClosed, nil)
}
