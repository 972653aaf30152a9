// Package client 无界面机器人客户端：连接房间、上报状态、随机开火并打印事件流
package client

import (
	"math"

	"triarena/server"
)

// 已处理 bulletId 超过上限时淘汰最早的一半
const (
	maxSeenBullets = 1000
	pruneBullets   = 500
)

// View 客户端本地视图：自己的状态 + 其他玩家的最后一次快照
type View struct {
	MyID   string
	MyZone int
	X, Y   float64
	HP     int
	Others map[string]server.PlayerState

	seen  map[string]struct{}
	order []string
}

func NewView() *View {
	return &View{
		Others: make(map[string]server.PlayerState),
		seen:   make(map[string]struct{}),
	}
}

// Reset 收到 hello 后按区域中心放置自己，清空其他玩家
func (v *View) Reset(hello server.HelloMessage, capacity int, arenaRadius float64, maxHP int) {
	v.MyID = hello.PlayerID
	v.MyZone = hello.Zone
	angle := server.ZoneCenterAngle(hello.Zone, capacity)
	v.X = math.Cos(angle) * arenaRadius * 0.6
	v.Y = math.Sin(angle) * arenaRadius * 0.6
	v.HP = maxHP
	v.Others = make(map[string]server.PlayerState)
}

// ApplyPlayers 用快照替换其他玩家；快照里已不存在的玩家一并移除
func (v *View) ApplyPlayers(players map[string]server.PlayerState) {
	next := make(map[string]server.PlayerState, len(players))
	for id, p := range players {
		if id == v.MyID {
			continue
		}
		next[id] = p
	}
	v.Others = next
}

// SeeFire 记录 bulletId；重复的返回 false
func (v *View) SeeFire(bulletID string) bool {
	if _, ok := v.seen[bulletID]; ok {
		return false
	}
	v.seen[bulletID] = struct{}{}
	v.order = append(v.order, bulletID)
	if len(v.order) > maxSeenBullets {
		for _, id := range v.order[:pruneBullets] {
			delete(v.seen, id)
		}
		v.order = append([]string(nil), v.order[pruneBullets:]...)
	}
	return true
}

// ApplyDamage 自己的伤害已在本地扣过，只处理其他玩家；hp 不低于 0
func (v *View) ApplyDamage(d server.DamageRelay) bool {
	if d.PlayerID == v.MyID {
		return false
	}
	p, ok := v.Others[d.PlayerID]
	if !ok {
		return false
	}
	p.HP = int(math.Max(0, float64(p.HP)-d.Amount))
	v.Others[d.PlayerID] = p
	return true
}

// TakeDamage 本地受伤，返回实际扣除量
func (v *View) TakeDamage(amount int) int {
	if amount > v.HP {
		amount = v.HP
	}
	v.HP -= amount
	return amount
}
