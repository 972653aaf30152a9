package server

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// PlayerState 为广播给客户端的玩家状态
type PlayerState struct {
	ID        string  `json:"id"`
	Zone      int     `json:"zone"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	HP        int     `json:"hp"`
	AimOffset float64 `json:"aimOffset"`
	Shield    bool    `json:"shield"`
}

// InputState 最近一次输入意图，由权威 Tick 消费
type InputState struct {
	Seq   int64
	Up    bool
	Down  bool
	Left  bool
	Right bool
	Shoot bool
	AimX  float64
	AimY  float64
}

// PlayerSession 房间内的玩家会话，只由房间协程读写
type PlayerSession struct {
	ID        string
	Zone      int
	X         float64
	Y         float64
	HP        int
	MaxHP     int
	AimOffset float64
	Shield    bool

	// 权威模拟使用
	Input      InputState
	LastShotAt time.Time

	Conn Conn
}

// NewPlayerSession 创建会话，ID 由服务端生成（uuid，不复用）
func NewPlayerSession(conn Conn, zone, maxHP int) *PlayerSession {
	return &PlayerSession{
		ID:    uuid.NewString(),
		Zone:  zone,
		HP:    maxHP,
		MaxHP: maxHP,
		Conn:  conn,
	}
}

// State 当前状态的只读拷贝
func (p *PlayerSession) State() PlayerState {
	return PlayerState{
		ID:        p.ID,
		Zone:      p.Zone,
		X:         p.X,
		Y:         p.Y,
		HP:        p.HP,
		AimOffset: p.AimOffset,
		Shield:    p.Shield,
	}
}

// SetHP 裁剪到 [0, MaxHP]
func (p *PlayerSession) SetHP(hp int) {
	p.HP = clampInt(hp, 0, p.MaxHP)
}

// SetAimOffset 裁剪到 [-limit, limit]；NaN 视为 0
func (p *PlayerSession) SetAimOffset(v, limit float64) {
	if math.IsNaN(v) {
		v = 0
	}
	p.AimOffset = math.Max(-limit, math.Min(limit, v))
}

// Alive hp 归零后不再参与碰撞
func (p *PlayerSession) Alive() bool { return p.HP > 0 }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
