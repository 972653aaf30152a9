package server

import (
	"encoding/json"
	"time"

	"triarena/config"
)

// RelayPolicy 纯转发：服务端不做物理，按固定频率广播各客户端最后上报的状态
type RelayPolicy struct {
	interval time.Duration
}

func NewRelayPolicy(interval time.Duration) *RelayPolicy {
	return &RelayPolicy{interval: interval}
}

func (p *RelayPolicy) Name() string            { return config.PolicyRelay }
func (p *RelayPolicy) Interval() time.Duration { return p.interval }

func (p *RelayPolicy) Accepts(kind string) bool {
	switch kind {
	case MsgState, MsgFire, MsgDamage, MsgPing:
		return true
	}
	return false
}

// OnJoin 位置由客户端在 hello 之后自行决定并上报
func (p *RelayPolicy) OnJoin(s *PlayerSession, capacity int) {}

func (p *RelayPolicy) Step(now time.Time, reg *ConnectionRegistry) StepResult {
	players := make(map[string]PlayerState, reg.Size())
	reg.ForEach(func(_ Conn, s *PlayerSession) {
		players[s.ID] = s.State()
	})
	b, _ := json.Marshal(PlayersMessage{Type: MsgPlayers, Players: players})
	return StepResult{Payload: b}
}

func (p *RelayPolicy) Reset() {}
