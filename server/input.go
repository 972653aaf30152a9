package server

import (
	"encoding/json"
	"fmt"
	"math"
)

// 客户端 → 服务端 消息类型
const (
	MsgState  = "state"
	MsgInput  = "input"
	MsgFire   = "fire"
	MsgDamage = "damage"
	MsgPing   = "ping"
)

// StateMessage 客户端上报的完整状态（relay 策略）
// 示例：{"type":"state","id":"...","x":10,"y":20,"hp":300,"zone":0,"aimOffset":0.1,"shield":false}
// id 与 zone 以服务端分配为准，这里只为兼容客户端而解析
type StateMessage struct {
	Type      string   `json:"type"`
	ID        string   `json:"id,omitempty"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	HP        *float64 `json:"hp"`
	Zone      *int     `json:"zone,omitempty"`
	AimOffset *float64 `json:"aimOffset,omitempty"`
	Shield    *bool    `json:"shield,omitempty"`
}

// InputMessage 客户端输入意图（authoritative 策略），由服务端在 Tick 中解释
// 示例：{"type":"input","seq":12,"up":false,"down":false,"left":true,"right":false,"shoot":true,"aimX":0,"aimY":0}
type InputMessage struct {
	Type  string  `json:"type"`
	Seq   int64   `json:"seq"`
	Up    bool    `json:"up"`
	Down  bool    `json:"down"`
	Left  bool    `json:"left"`
	Right bool    `json:"right"`
	Shoot bool    `json:"shoot"`
	AimX  float64 `json:"aimX"`
	AimY  float64 `json:"aimY"`
}

// FireMessage 特殊武器发射，仅转发
type FireMessage struct {
	Type       string   `json:"type"`
	BulletType string   `json:"bulletType"`
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	Angle      *float64 `json:"angle"`
	BulletID   string   `json:"bulletId"`
	TargetID   string   `json:"targetId,omitempty"`
}

// DamageMessage 伤害声明，服务端不校验是否真实命中，数值原样转发（负数由客户端兜底）
type DamageMessage struct {
	Type   string   `json:"type"`
	Amount *float64 `json:"amount"`
}

// PingMessage 无需回复
type PingMessage struct {
	Type string  `json:"type"`
	T    float64 `json:"t"`
}

// DecodeClientMessage 解析一条文本帧，返回具体消息：
// StateMessage / InputState / FireEvent(FromID 为空) / DamageMessage / PingMessage
func DecodeClientMessage(payload []byte) (string, any, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", nil, fmt.Errorf("%w: invalid JSON", ErrMalformedMessage)
	}

	switch env.Type {
	case MsgState:
		var m StateMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return env.Type, nil, fmt.Errorf("%w: state: %v", ErrMalformedMessage, err)
		}
		if m.X == nil || m.Y == nil || m.HP == nil {
			return env.Type, nil, fmt.Errorf("%w: state requires x, y and hp", ErrMalformedMessage)
		}
		if !finite(*m.X, *m.Y, *m.HP) || (m.AimOffset != nil && !finite(*m.AimOffset)) {
			return env.Type, nil, fmt.Errorf("%w: state values must be finite", ErrMalformedMessage)
		}
		return env.Type, m, nil

	case MsgInput:
		var m InputMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return env.Type, nil, fmt.Errorf("%w: input: %v", ErrMalformedMessage, err)
		}
		return env.Type, InputState{
			Seq: m.Seq, Up: m.Up, Down: m.Down, Left: m.Left, Right: m.Right,
			Shoot: m.Shoot, AimX: m.AimX, AimY: m.AimY,
		}, nil

	case MsgFire:
		var m FireMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return env.Type, nil, fmt.Errorf("%w: fire: %v", ErrMalformedMessage, err)
		}
		if m.X == nil || m.Y == nil || m.Angle == nil {
			return env.Type, nil, fmt.Errorf("%w: fire requires x, y and angle", ErrMalformedMessage)
		}
		if m.BulletID == "" {
			return env.Type, nil, fmt.Errorf("%w: fire requires bulletId", ErrMalformedMessage)
		}
		w, err := ParseWeapon(m.BulletType, m.TargetID)
		if err != nil {
			return env.Type, nil, err
		}
		return env.Type, FireEvent{Weapon: w, X: *m.X, Y: *m.Y, Angle: *m.Angle, BulletID: m.BulletID}, nil

	case MsgDamage:
		var m DamageMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return env.Type, nil, fmt.Errorf("%w: damage: %v", ErrMalformedMessage, err)
		}
		if m.Amount == nil {
			return env.Type, nil, fmt.Errorf("%w: damage requires amount", ErrMalformedMessage)
		}
		return env.Type, m, nil

	case MsgPing:
		var m PingMessage
		_ = json.Unmarshal(payload, &m)
		return env.Type, m, nil

	case "":
		return "", nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return env.Type, nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
