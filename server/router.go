package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// MessageRouter 解码客户端消息并分派：修改会话状态或转发事件。
// 任何错误只回复给发送者，连接保持打开，其他会话不受影响。
type MessageRouter struct {
	policy   SimulationPolicy
	aimLimit float64
	metrics  *RoomMetrics
}

func NewMessageRouter(policy SimulationPolicy, aimLimit float64, metrics *RoomMetrics) *MessageRouter {
	return &MessageRouter{policy: policy, aimLimit: aimLimit, metrics: metrics}
}

// Route 处理一条消息；返回的 error 仅用于日志与测试，已经回复过发送者
func (m *MessageRouter) Route(reg *ConnectionRegistry, from *PlayerSession, payload []byte) error {
	kind, msg, err := DecodeClientMessage(payload)
	if err == nil && !m.policy.Accepts(kind) {
		err = fmt.Errorf("%w: %q in %s mode", ErrNotAccepted, kind, m.policy.Name())
	}
	if err != nil {
		m.metrics.IncProtocolError()
		send(from.Conn, encodeError(errorReason(err)), m.metrics)
		return err
	}
	m.metrics.IncRouted()

	switch v := msg.(type) {
	case StateMessage:
		// 不校验物理合理性，原样保存，下一次广播带出；hp 四舍五入为整数
		from.X = *v.X
		from.Y = *v.Y
		from.SetHP(int(math.Round(math.Max(0, math.Min(*v.HP, float64(from.MaxHP))))))
		if v.AimOffset != nil {
			from.SetAimOffset(*v.AimOffset, m.aimLimit)
		}
		from.Shield = v.Shield != nil && *v.Shield

	case InputState:
		if v.Seq > 0 && v.Seq <= from.Input.Seq {
			m.metrics.IncStaleInput()
			return nil
		}
		from.Input = v

	case FireEvent:
		v.FromID = from.ID
		b, _ := json.Marshal(v.Relay())
		n := 0
		reg.ForEach(func(c Conn, s *PlayerSession) {
			// 发送者本地已知自己的射击，不回传
			if s == from {
				return
			}
			if send(c, b, m.metrics) {
				n++
			}
		})
		m.metrics.AddRelays(n)

	case DamageMessage:
		b, _ := json.Marshal(DamageRelay{Type: MsgDamage, PlayerID: from.ID, Amount: *v.Amount})
		n := 0
		reg.ForEach(func(c Conn, s *PlayerSession) {
			if send(c, b, m.metrics) {
				n++
			}
		})
		m.metrics.AddRelays(n)

	case PingMessage:
		// 不需要回复
	}
	return nil
}

// errorReason 给客户端的可读原因
func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrUnknownMessage), errors.Is(err, ErrNotAccepted):
		return err.Error()
	default:
		return "internal error"
	}
}
