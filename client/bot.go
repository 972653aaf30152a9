package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"triarena/config"
	"triarena/server"
)

var ErrRoomFull = errors.New("room is full")

// 武器伤害（与前端一致，由客户端自行判定命中后上报）
var weaponDamage = map[string]int{
	server.WeaponGrenade: 40,
	server.WeaponBeam:    60,
	server.WeaponShotgun: 8,
	server.WeaponMissile: 35,
}

var weaponKinds = []string{server.WeaponGrenade, server.WeaponBeam, server.WeaponShotgun, server.WeaponMissile}

// Options 机器人参数
type Options struct {
	Server         string // ws://host:port
	Room           string
	Policy         string // relay | authoritative
	Capacity       int
	ArenaRadius    float64
	MaxHP          int
	SendEvery      time.Duration
	FireChance     float64 // 每次发送时开火的概率
	DamageChance   float64 // 每次发送时"被击中"的概率
	PrintEvery     time.Duration
	ReconnectDelay time.Duration
	Seed           int64
}

func DefaultOptions() Options {
	return Options{
		Server:         "ws://localhost:8787",
		Room:           "lobby",
		Policy:         config.PolicyRelay,
		Capacity:       3,
		ArenaRadius:    450,
		MaxHP:          300,
		SendEvery:      50 * time.Millisecond,
		FireChance:     0.02,
		DamageChance:   0.01,
		PrintEvery:     2 * time.Second,
		ReconnectDelay: 2 * time.Second,
		Seed:           time.Now().UnixNano(),
	}
}

// Bot 一个连接一个玩家；断线后固定延迟重连（每次重连都是新的玩家 ID）
type Bot struct {
	opts    Options
	display *Display
	dialer  *websocket.Dialer
	rng     *rand.Rand

	view      *View
	seq       int64
	lastPrint time.Time
}

func NewBot(opts Options, display *Display) *Bot {
	if display == nil {
		display = NewDisplay()
	}
	return &Bot{
		opts:    opts,
		display: display,
		dialer:  &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		rng:     rand.New(rand.NewSource(opts.Seed)),
		view:    NewView(),
	}
}

func (b *Bot) View() *View { return b.view }

// ConnectURL <server>/connect?room=<room>
func (b *Bot) ConnectURL() (string, error) {
	u, err := url.Parse(b.opts.Server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/connect"
	q := u.Query()
	q.Set("room", b.opts.Room)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run 连接并保持运行，直到 ctx 结束
func (b *Bot) Run(ctx context.Context) error {
	for {
		err := b.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.display.Status(fmt.Sprintf("disconnected (%v), reconnecting in %s", err, b.opts.ReconnectDelay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.opts.ReconnectDelay):
		}
	}
}

func (b *Bot) session(ctx context.Context) error {
	target, err := b.ConnectURL()
	if err != nil {
		return err
	}
	ws, resp, err := b.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
			return ErrRoomFull
		}
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer ws.Close()
	b.display.Status("connected to " + target)

	incoming := make(chan []byte, 64)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(incoming)
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case incoming <- data:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(b.opts.SendEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case data, ok := <-incoming:
			if !ok {
				return <-readErr
			}
			if err := b.Handle(data); err != nil {
				b.display.Error(err.Error())
			}
		case <-ticker.C:
			for _, msg := range b.Outgoing() {
				if err := ws.WriteJSON(msg); err != nil {
					return fmt.Errorf("write: %w", err)
				}
			}
		}
	}
}

// Handle 处理一条服务端消息，更新本地视图并打印
func (b *Bot) Handle(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	switch head.Type {
	case server.MsgHello:
		var h server.HelloMessage
		if err := json.Unmarshal(data, &h); err != nil {
			return err
		}
		b.view.Reset(h, b.opts.Capacity, b.opts.ArenaRadius, b.opts.MaxHP)
		b.seq = 0
		b.display.Hello(h)
	case server.MsgPlayers:
		var m server.PlayersMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		b.view.ApplyPlayers(m.Players)
		b.maybePrint()
	case server.MsgState:
		var m server.SimStateMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		// 权威模式下自己的位置与血量也以服务端为准
		if me, ok := m.Players[b.view.MyID]; ok {
			b.view.X, b.view.Y, b.view.HP = me.X, me.Y, me.HP
		}
		b.view.ApplyPlayers(m.Players)
		b.maybePrint()
	case server.MsgFire:
		var f server.FireRelay
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		if b.view.SeeFire(f.BulletID) {
			b.display.Fire(f)
		}
	case server.MsgDamage:
		var d server.DamageRelay
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		if b.view.ApplyDamage(d) {
			b.display.Damage(d, b.view.Others[d.PlayerID].HP)
		}
	case server.MsgError:
		var e server.ErrorMessage
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		b.display.Error(e.Message)
	default:
		return fmt.Errorf("unknown message type %q", head.Type)
	}
	return nil
}

func (b *Bot) maybePrint() {
	if time.Since(b.lastPrint) < b.opts.PrintEvery {
		return
	}
	b.lastPrint = time.Now()
	b.display.Players(b.view)
}

// Outgoing 本次发送周期要发出的消息；hello 之前不发送任何东西
func (b *Bot) Outgoing() []any {
	if b.view.MyID == "" {
		return nil
	}
	var out []any
	if b.opts.Policy == config.PolicyAuthoritative {
		out = append(out, b.nextInput())
	} else {
		b.wander()
		out = append(out, b.stateMessage())
	}
	if b.view.HP > 0 && b.rng.Float64() < b.opts.FireChance {
		out = append(out, b.fireMessage())
	}
	if b.view.HP > 0 && b.rng.Float64() < b.opts.DamageChance {
		kind := weaponKinds[b.rng.Intn(len(weaponKinds))]
		amount := float64(b.view.TakeDamage(weaponDamage[kind]))
		out = append(out, server.DamageMessage{Type: server.MsgDamage, Amount: &amount})
	}
	return out
}

func (b *Bot) stateMessage() server.StateMessage {
	x, y, hp := b.view.X, b.view.Y, float64(b.view.HP)
	aim := (b.rng.Float64()*2 - 1) * 0.8
	shield := false
	return server.StateMessage{
		Type: server.MsgState, ID: b.view.MyID,
		X: &x, Y: &y, HP: &hp,
		Zone: &b.view.MyZone, AimOffset: &aim, Shield: &shield,
	}
}

func (b *Bot) nextInput() server.InputMessage {
	b.seq++
	return server.InputMessage{
		Type:  server.MsgInput,
		Seq:   b.seq,
		Up:    b.rng.Intn(4) == 0,
		Down:  b.rng.Intn(4) == 0,
		Left:  b.rng.Intn(4) == 0,
		Right: b.rng.Intn(4) == 0,
		Shoot: b.rng.Intn(3) == 0,
	}
}

func (b *Bot) fireMessage() server.FireMessage {
	kind := weaponKinds[b.rng.Intn(len(weaponKinds))]
	x, y := b.view.X, b.view.Y
	// 朝竞技场中心附近射击
	angle := math.Atan2(-y, -x) + (b.rng.Float64()-0.5)*0.6
	msg := server.FireMessage{
		Type:       server.MsgFire,
		BulletType: kind,
		X:          &x,
		Y:          &y,
		Angle:      &angle,
		BulletID:   b.bulletID(),
	}
	if kind == server.WeaponMissile {
		for id := range b.view.Others {
			msg.TargetID = id
			break
		}
	}
	return msg
}

// bulletID <playerId>-<毫秒>-<随机串>，同一玩家内唯一
func (b *Bot) bulletID() string {
	return b.view.MyID + "-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + strconv.FormatInt(b.rng.Int63(), 36)
}

// wander 在自己的区域附近小幅移动，不超出竞技场
func (b *Bot) wander() {
	x := b.view.X + (b.rng.Float64()-0.5)*10
	y := b.view.Y + (b.rng.Float64()-0.5)*10
	if d := math.Hypot(x, y); d > b.opts.ArenaRadius {
		x, y = x/d*b.opts.ArenaRadius, y/d*b.opts.ArenaRadius
	}
	b.view.X, b.view.Y = x, y
}
