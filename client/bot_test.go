package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triarena/config"
	"triarena/server"
)

func newTestBot(policy string) (*Bot, *bytes.Buffer) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Policy = policy
	opts.Seed = 1
	return NewBot(opts, NewDisplayTo(&buf)), &buf
}

func frame(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestConnectURL(t *testing.T) {
	b, _ := newTestBot(config.PolicyRelay)
	b.opts.Server = "http://example.com:8787"
	b.opts.Room = "my room"

	got, err := b.ConnectURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://example.com:8787/connect?room=my+room", got)
}

func TestHelloPlacesBotInZone(t *testing.T) {
	b, _ := newTestBot(config.PolicyRelay)
	require.NoError(t, b.Handle(frame(t, server.HelloMessage{Type: server.MsgHello, PlayerID: "me", Zone: 0})))

	v := b.View()
	assert.Equal(t, "me", v.MyID)
	assert.InDelta(t, 0, v.X, 1e-9)
	assert.InDelta(t, -270, v.Y, 1e-9)
	assert.Equal(t, 300, v.HP)
}

func TestFireIsDeduplicated(t *testing.T) {
	b, buf := newTestBot(config.PolicyRelay)
	fire := frame(t, server.FireRelay{Type: server.MsgFire, FromID: "p2", BulletType: server.WeaponBeam, BulletID: "b1"})

	require.NoError(t, b.Handle(fire))
	require.NoError(t, b.Handle(fire))
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("[FIRE]")))
}

func TestDamageAppliesToOthersOnly(t *testing.T) {
	b, _ := newTestBot(config.PolicyRelay)
	require.NoError(t, b.Handle(frame(t, server.HelloMessage{Type: server.MsgHello, PlayerID: "me", Zone: 0})))
	require.NoError(t, b.Handle(frame(t, server.PlayersMessage{Type: server.MsgPlayers, Players: map[string]server.PlayerState{
		"me": {ID: "me", HP: 300},
		"p2": {ID: "p2", Zone: 1, HP: 50},
	}})))

	require.NoError(t, b.Handle(frame(t, server.DamageRelay{Type: server.MsgDamage, PlayerID: "p2", Amount: 40})))
	require.NoError(t, b.Handle(frame(t, server.DamageRelay{Type: server.MsgDamage, PlayerID: "p2", Amount: 40})))
	require.NoError(t, b.Handle(frame(t, server.DamageRelay{Type: server.MsgDamage, PlayerID: "me", Amount: 40})))

	v := b.View()
	assert.Equal(t, 0, v.Others["p2"].HP, "hp floors at zero")
	assert.Equal(t, 300, v.HP, "own damage is applied locally when reported")
	assert.NotContains(t, v.Others, "me")
}

func TestSnapshotDropsDepartedPlayers(t *testing.T) {
	b, _ := newTestBot(config.PolicyAuthoritative)
	require.NoError(t, b.Handle(frame(t, server.HelloMessage{Type: server.MsgHello, PlayerID: "me", Zone: 1})))
	require.NoError(t, b.Handle(frame(t, server.SimStateMessage{Type: server.MsgState, Players: map[string]server.PlayerState{
		"me": {ID: "me", X: 5, Y: 6, HP: 17},
		"p2": {ID: "p2"},
	}})))
	require.Contains(t, b.View().Others, "p2")
	assert.Equal(t, 17, b.View().HP)
	assert.Equal(t, 5.0, b.View().X)

	require.NoError(t, b.Handle(frame(t, server.SimStateMessage{Type: server.MsgState, Players: map[string]server.PlayerState{
		"me": {ID: "me", HP: 17},
	}})))
	assert.Empty(t, b.View().Others)
}

func TestHandleUnknownMessage(t *testing.T) {
	b, _ := newTestBot(config.PolicyRelay)
	assert.Error(t, b.Handle([]byte(`{"type":"mystery"}`)))
	assert.Error(t, b.Handle([]byte(`nope`)))
}

func TestOutgoingMatchesPolicy(t *testing.T) {
	relay, _ := newTestBot(config.PolicyRelay)
	assert.Empty(t, relay.Outgoing(), "nothing is sent before hello")

	require.NoError(t, relay.Handle(frame(t, server.HelloMessage{Type: server.MsgHello, PlayerID: "me", Zone: 2})))
	out := relay.Outgoing()
	require.NotEmpty(t, out)
	state, ok := out[0].(server.StateMessage)
	require.True(t, ok)
	assert.LessOrEqual(t, *state.AimOffset, 0.8)
	assert.GreaterOrEqual(t, *state.AimOffset, -0.8)

	auth, _ := newTestBot(config.PolicyAuthoritative)
	require.NoError(t, auth.Handle(frame(t, server.HelloMessage{Type: server.MsgHello, PlayerID: "me", Zone: 0})))
	first := auth.Outgoing()[0].(server.InputMessage)
	second := auth.Outgoing()[0].(server.InputMessage)
	assert.Equal(t, first.Seq+1, second.Seq)
}

func TestOutgoingMessagesAreAcceptedByServerDecoder(t *testing.T) {
	b, _ := newTestBot(config.PolicyRelay)
	b.opts.FireChance = 1
	b.opts.DamageChance = 1
	require.NoError(t, b.Handle(frame(t, server.HelloMessage{Type: server.MsgHello, PlayerID: "me", Zone: 0})))

	out := b.Outgoing()
	require.Len(t, out, 3)
	for i, msg := range out {
		kind, _, err := server.DecodeClientMessage(frame(t, msg))
		require.NoError(t, err, fmt.Sprintf("message %d (%s)", i, kind))
	}
	assert.Less(t, b.View().HP, 300)
}

func TestSeenBulletsArePruned(t *testing.T) {
	v := NewView()
	for i := 0; i < maxSeenBullets+1; i++ {
		require.True(t, v.SeeFire(fmt.Sprintf("b%d", i)))
	}
	assert.Len(t, v.seen, maxSeenBullets+1-pruneBullets)
	assert.True(t, v.SeeFire("b0"), "oldest ids are forgotten")
	assert.False(t, v.SeeFire(fmt.Sprintf("b%d", maxSeenBullets)))
}

func TestDisplayInfo(t *testing.T) {
	var buf bytes.Buffer
	NewDisplayTo(&buf).Info("starting %d bot(s) room=%s", 2, "lobby")
	assert.Contains(t, buf.String(), "starting 2 bot(s) room=lobby")
}
