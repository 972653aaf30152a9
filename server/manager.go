package server

import (
	"sort"
	"sync"
	"time"
)

// Directory 房间名 → 房间，首次引用时创建，一个名字一个实例。
// 房间名即分片键，不同房间之间没有共享可变状态。
type Directory struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	opts    RoomOptions
	idleTTL time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewDirectory(opts RoomOptions, idleTTL time.Duration) *Directory {
	if opts.Sink == nil {
		opts.Sink = LogSink{}
	}
	return &Directory{
		rooms:   make(map[string]*Room),
		opts:    opts,
		idleTTL: idleTTL,
		stop:    make(chan struct{}),
	}
}

// GetOrCreateRoom 获取或创建房间，并确保房间协程已启动
func (d *Directory) GetOrCreateRoom(name string) *Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getOrCreateLocked(name)
}

func (d *Directory) getOrCreateLocked(name string) *Room {
	r, ok := d.rooms[name]
	if !ok {
		r = NewRoom(name, d.opts)
		d.rooms[name] = r
		go r.Run()
		Log.Infof("room created: %s policy=%s", name, r.PolicyName())
	}
	return r
}

// Get 只查询，不创建
func (d *Directory) Get(name string) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[name]
	return r, ok
}

// Reserve 解析房间并占座；与回收在同一把锁下进行，连接不会落到已回收的房间
func (d *Directory) Reserve(name string) (*Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.getOrCreateLocked(name)
	if err := r.Reserve(); err != nil {
		d.opts.Sink.Publish(LifecycleEvent{
			Kind:      EventRoomRejected,
			Room:      name,
			Policy:    r.PolicyName(),
			Occupancy: r.Seats(),
			At:        time.Now(),
		})
		return r, err
	}
	return r, nil
}

// Reap 回收空闲超过 idleTTL 的房间，并为其余房间发出心跳；返回回收数量
func (d *Directory) Reap(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for name, r := range d.rooms {
		if r.idleFor(now) >= d.idleTTL && r.tryClose() {
			delete(d.rooms, name)
			n++
			Log.Infof("room reaped: %s", name)
			continue
		}
		d.opts.Sink.Publish(LifecycleEvent{
			Kind:      EventRoomHeartbeat,
			Room:      name,
			Policy:    r.PolicyName(),
			Occupancy: r.Seats(),
			At:        now,
		})
	}
	return n
}

// StartJanitor 定期回收空闲房间
func (d *Directory) StartJanitor(interval time.Duration) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				d.Reap(now)
			case <-d.stop:
				return
			}
		}
	}()
}

// List 所有房间信息，按名字排序
func (d *Directory) List() []RoomInfo {
	d.mu.Lock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.Unlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close 停止回收并关闭所有房间
func (d *Directory) Close() {
	d.once.Do(func() { close(d.stop) })
	d.wg.Wait()

	d.mu.Lock()
	rooms := d.rooms
	d.rooms = make(map[string]*Room)
	d.mu.Unlock()
	for _, r := range rooms {
		r.Close()
	}
}
