package server

// ConnectionRegistry 连接 → 玩家会话的映射。
// 以连接为键：关闭/出错回调只带连接本身，不带玩家 ID。
type ConnectionRegistry struct {
	sessions map[Conn]*PlayerSession
	order    []Conn
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{sessions: make(map[Conn]*PlayerSession)}
}

// Add 注册会话；同一连接重复注册时覆盖旧会话，不改变顺序
func (r *ConnectionRegistry) Add(c Conn, s *PlayerSession) {
	if _, ok := r.sessions[c]; !ok {
		r.order = append(r.order, c)
	}
	r.sessions[c] = s
}

// Remove 移除并返回会话；未注册返回 nil
func (r *ConnectionRegistry) Remove(c Conn) *PlayerSession {
	s, ok := r.sessions[c]
	if !ok {
		return nil
	}
	delete(r.sessions, c)
	for i, oc := range r.order {
		if oc == c {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return s
}

func (r *ConnectionRegistry) Get(c Conn) (*PlayerSession, bool) {
	s, ok := r.sessions[c]
	return s, ok
}

// ForEach 按加入顺序遍历；顺序仅用于展示稳定性
func (r *ConnectionRegistry) ForEach(fn func(c Conn, s *PlayerSession)) {
	for _, c := range r.order {
		fn(c, r.sessions[c])
	}
}

func (r *ConnectionRegistry) Size() int { return len(r.sessions) }

// Clear 清空（仅在房间关闭时使用）
func (r *ConnectionRegistry) Clear() {
	r.sessions = make(map[Conn]*PlayerSession)
	r.order = nil
}
