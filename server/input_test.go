package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    string
		wantErr error
	}{
		{"state", `{"type":"state","x":1,"y":2,"hp":300}`, MsgState, nil},
		{"state missing hp", `{"type":"state","x":1,"y":2}`, MsgState, ErrMalformedMessage},
		{"input", `{"type":"input","seq":3,"left":true}`, MsgInput, nil},
		{"fire grenade", `{"type":"fire","bulletType":"grenade","x":0,"y":0,"angle":1,"bulletId":"b1"}`, MsgFire, nil},
		{"fire unknown weapon", `{"type":"fire","bulletType":"laser","x":0,"y":0,"angle":1,"bulletId":"b1"}`, MsgFire, ErrMalformedMessage},
		{"fire without bulletId", `{"type":"fire","bulletType":"beam","x":0,"y":0,"angle":1}`, MsgFire, ErrMalformedMessage},
		{"damage", `{"type":"damage","amount":40}`, MsgDamage, nil},
		{"negative damage", `{"type":"damage","amount":-5}`, MsgDamage, nil},
		{"damage without amount", `{"type":"damage"}`, MsgDamage, ErrMalformedMessage},
		{"ping", `{"type":"ping","t":123}`, MsgPing, nil},
		{"unknown type", `{"type":"teleport"}`, "teleport", ErrUnknownMessage},
		{"missing type", `{"x":1}`, "", ErrMalformedMessage},
		{"not json", `not json`, "", ErrMalformedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, msg, err := DecodeClientMessage([]byte(tt.payload))
			assert.Equal(t, tt.kind, kind)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, msg)
		})
	}
}

func TestDecodeMissileKeepsTarget(t *testing.T) {
	_, msg, err := DecodeClientMessage([]byte(`{"type":"fire","bulletType":"missile","x":5,"y":6,"angle":0.5,"bulletId":"m1","targetId":"p2"}`))
	require.NoError(t, err)

	fire, ok := msg.(FireEvent)
	require.True(t, ok)
	assert.Equal(t, Missile{TargetID: "p2"}, fire.Weapon)

	relay := fire.Relay()
	assert.Equal(t, WeaponMissile, relay.BulletType)
	assert.Equal(t, "p2", relay.TargetID)
	assert.Equal(t, "m1", relay.BulletID)
}
