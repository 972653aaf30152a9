package server

import (
	"encoding/json"
	"fmt"
)

// 服务端 → 客户端 消息类型（state 与客户端同名，由策略决定使用 players 还是 state）
const (
	MsgHello   = "hello"
	MsgPlayers = "players"
	MsgError   = "error"
)

// 武器种类
const (
	WeaponGrenade = "grenade"
	WeaponBeam    = "beam"
	WeaponShotgun = "shotgun"
	WeaponMissile = "missile"
)

// Weapon 发射事件携带的武器，每种只带自己需要的字段
type Weapon interface {
	Kind() string
}

type Grenade struct{}
type Beam struct{}
type Shotgun struct{}

// Missile 追踪弹，TargetID 可为空（无目标时直线飞行）
type Missile struct {
	TargetID string
}

func (Grenade) Kind() string { return WeaponGrenade }
func (Beam) Kind() string    { return WeaponBeam }
func (Shotgun) Kind() string { return WeaponShotgun }
func (Missile) Kind() string { return WeaponMissile }

// ParseWeapon bulletType → Weapon；targetId 只对 missile 有意义
func ParseWeapon(kind, targetID string) (Weapon, error) {
	switch kind {
	case WeaponGrenade:
		return Grenade{}, nil
	case WeaponBeam:
		return Beam{}, nil
	case WeaponShotgun:
		return Shotgun{}, nil
	case WeaponMissile:
		return Missile{TargetID: targetID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown bulletType %q", ErrMalformedMessage, kind)
	}
}

// FireEvent 一次性转发事件，不落地
type FireEvent struct {
	FromID   string
	Weapon   Weapon
	X        float64
	Y        float64
	Angle    float64
	BulletID string
}

// FireRelay fire 的线上格式
type FireRelay struct {
	Type       string  `json:"type"`
	FromID     string  `json:"fromId"`
	BulletType string  `json:"bulletType"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Angle      float64 `json:"angle"`
	BulletID   string  `json:"bulletId"`
	TargetID   string  `json:"targetId,omitempty"`
}

// Relay 转为线上格式
func (e FireEvent) Relay() FireRelay {
	out := FireRelay{
		Type:     MsgFire,
		FromID:   e.FromID,
		X:        e.X,
		Y:        e.Y,
		Angle:    e.Angle,
		BulletID: e.BulletID,
	}
	if e.Weapon != nil {
		out.BulletType = e.Weapon.Kind()
	}
	if m, ok := e.Weapon.(Missile); ok {
		out.TargetID = m.TargetID
	}
	return out
}

type HelloMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Zone     int    `json:"zone"`
}

// PlayersMessage relay 策略的快照
type PlayersMessage struct {
	Type    string                 `json:"type"`
	Players map[string]PlayerState `json:"players"`
}

// BulletState 权威策略中的服务端子弹
type BulletState struct {
	ID      int64   `json:"id"`
	OwnerID string  `json:"ownerId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// SimStateMessage authoritative 策略的快照，t 为毫秒时间戳
type SimStateMessage struct {
	Type    string                 `json:"type"`
	T       int64                  `json:"t"`
	Tick    int64                  `json:"tick"`
	Players map[string]PlayerState `json:"players"`
	Bullets []BulletState          `json:"bullets"`
}

// DamageRelay playerId 永远是声明伤害的发送者
type DamageRelay struct {
	Type     string  `json:"type"`
	PlayerID string  `json:"playerId"`
	Amount   float64 `json:"amount"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func encodeHello(id string, zone int) []byte {
	b, _ := json.Marshal(HelloMessage{Type: MsgHello, PlayerID: id, Zone: zone})
	return b
}

func encodeError(msg string) []byte {
	b, _ := json.Marshal(ErrorMessage{Type: MsgError, Message: msg})
	return b
}
