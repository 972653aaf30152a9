package server

import (
	"encoding/json"
	"math"
	"time"

	"triarena/config"
)

// 命中后把子弹移到场外作为删除标记，下一次过滤时清除
const deadBulletCoord = 1e9

type bullet struct {
	id     int64
	owner  string
	x, y   float64
	vx, vy float64
}

// AuthoritativePolicy 服务端权威模拟：移动、射击、子弹与碰撞都在服务端计算。
// 竞技场以 (0,0) 为圆心。
type AuthoritativePolicy struct {
	cfg     config.SimConfig
	bullets []*bullet
	nextID  int64
	tick    int64
}

func NewAuthoritativePolicy(cfg config.SimConfig) *AuthoritativePolicy {
	return &AuthoritativePolicy{cfg: cfg}
}

func (p *AuthoritativePolicy) Name() string            { return config.PolicyAuthoritative }
func (p *AuthoritativePolicy) Interval() time.Duration { return p.cfg.Interval }

func (p *AuthoritativePolicy) Accepts(kind string) bool {
	switch kind {
	case MsgInput, MsgFire, MsgDamage, MsgPing:
		return true
	}
	return false
}

// OnJoin 出生在本扇区中心方向、0.6 倍半径处
func (p *AuthoritativePolicy) OnJoin(s *PlayerSession, capacity int) {
	angle := ZoneCenterAngle(s.Zone, capacity)
	dist := p.cfg.ArenaRadius * 0.6
	s.X = math.Cos(angle) * dist
	s.Y = math.Sin(angle) * dist
	s.MaxHP = p.cfg.MaxHP
	s.HP = p.cfg.MaxHP
}

func (p *AuthoritativePolicy) Reset() {
	p.bullets = nil
	p.tick = 0
}

// Bullets 当前存活子弹（测试与调试用）
func (p *AuthoritativePolicy) Bullets() []BulletState {
	out := make([]BulletState, 0, len(p.bullets))
	for _, b := range p.bullets {
		if p.outside(b) {
			continue
		}
		out = append(out, BulletState{ID: b.id, OwnerID: b.owner, X: b.x, Y: b.y})
	}
	return out
}

func (p *AuthoritativePolicy) Step(now time.Time, reg *ConnectionRegistry) StepResult {
	p.tick++
	dt := p.cfg.Interval.Seconds()
	var res StepResult

	players := make([]*PlayerSession, 0, reg.Size())
	reg.ForEach(func(_ Conn, s *PlayerSession) { players = append(players, s) })

	// 1~3：输入 → 移动 → 边界 → 射击
	for _, s := range players {
		if !s.Alive() {
			continue
		}
		p.move(s, dt)
		if p.tryShoot(s, now) {
			res.Spawned++
		}
	}

	// 4：推进子弹
	for _, b := range p.bullets {
		b.x += b.vx * dt
		b.y += b.vy * dt
	}

	// 5：丢弃飞出边界（含上一帧的删除标记）的子弹
	live := p.bullets[:0]
	for _, b := range p.bullets {
		if !p.outside(b) {
			live = append(live, b)
		}
	}
	for i := len(live); i < len(p.bullets); i++ {
		p.bullets[i] = nil
	}
	p.bullets = live

	// 6：子弹 vs 玩家
	hitR := p.cfg.PlayerRadius + p.cfg.BulletRadius
	for _, b := range p.bullets {
		for _, s := range players {
			if s.ID == b.owner || !s.Alive() {
				continue
			}
			dx, dy := s.X-b.x, s.Y-b.y
			if dx*dx+dy*dy <= hitR*hitR {
				s.SetHP(s.HP - 1)
				b.x, b.y = deadBulletCoord, deadBulletCoord
				res.Hits++
				break
			}
		}
	}

	// 7：快照
	snap := SimStateMessage{
		Type:    MsgState,
		T:       now.UnixMilli(),
		Tick:    p.tick,
		Players: make(map[string]PlayerState, len(players)),
		Bullets: p.Bullets(),
	}
	for _, s := range players {
		snap.Players[s.ID] = s.State()
	}
	res.Payload, _ = json.Marshal(snap)
	return res
}

// move 斜向移动归一化，合速度不超过 MoveSpeed
func (p *AuthoritativePolicy) move(s *PlayerSession, dt float64) {
	var dx, dy float64
	if s.Input.Left {
		dx--
	}
	if s.Input.Right {
		dx++
	}
	if s.Input.Up {
		dy--
	}
	if s.Input.Down {
		dy++
	}
	if dx == 0 && dy == 0 {
		return
	}
	if dx != 0 && dy != 0 {
		dx /= math.Sqrt2
		dy /= math.Sqrt2
	}
	s.X += dx * p.cfg.MoveSpeed * dt
	s.Y += dy * p.cfg.MoveSpeed * dt
	p.clamp(s)
}

// clamp 限制在圆形竞技场内（圆心距离 ≤ 半径 - 玩家半径）
func (p *AuthoritativePolicy) clamp(s *PlayerSession) {
	maxDist := p.cfg.ArenaRadius - p.cfg.PlayerRadius
	dist := math.Hypot(s.X, s.Y)
	if dist <= maxDist {
		return
	}
	scale := maxDist / dist
	s.X *= scale
	s.Y *= scale
}

func (p *AuthoritativePolicy) tryShoot(s *PlayerSession, now time.Time) bool {
	if !s.Input.Shoot {
		return false
	}
	if !s.LastShotAt.IsZero() && now.Sub(s.LastShotAt) < p.cfg.ShotCooldown {
		return false
	}
	dx, dy := s.Input.AimX-s.X, s.Input.AimY-s.Y
	dist := math.Hypot(dx, dy)
	if dist < 1e-9 {
		// 瞄准点与自身重合时朝圆心射击
		dx, dy = -s.X, -s.Y
		dist = math.Hypot(dx, dy)
		if dist < 1e-9 {
			return false
		}
	}
	s.LastShotAt = now
	p.nextID++
	p.bullets = append(p.bullets, &bullet{
		id:    p.nextID,
		owner: s.ID,
		x:     s.X,
		y:     s.Y,
		vx:    dx / dist * p.cfg.BulletSpeed,
		vy:    dy / dist * p.cfg.BulletSpeed,
	})
	return true
}

func (p *AuthoritativePolicy) outside(b *bullet) bool {
	limit := p.cfg.ArenaRadius + p.cfg.BulletMargin
	return math.Hypot(b.x, b.y) > limit
}
