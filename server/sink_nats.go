package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSink 把生命周期事件发布到 NATS
// Subject 命名：<prefix>.<room>.<kind>，例如 arena.rooms.lobby.player.joined
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSSink(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("triarena"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				Log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			Log.Infof("nats reconnected: %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSSink{conn: conn, prefix: prefix}, nil
}

func (s *NATSSink) Publish(ev LifecycleEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		Log.Warnf("marshal event: %v", err)
		return
	}
	if err := s.conn.Publish(EventSubject(s.prefix, ev), data); err != nil {
		Log.Warnw("nats publish failed", "kind", ev.Kind, "room", ev.Room, "err", err)
	}
}

// Close 发送完缓冲中的消息后断开
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}

// EventSubject 房间名中的 '.'、空白与通配符替换为 '_'，避免破坏 subject 层级
func EventSubject(prefix string, ev LifecycleEvent) string {
	room := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, ev.Room)
	if room == "" {
		room = "_"
	}
	if prefix == "" {
		return room + "." + ev.Kind
	}
	return prefix + "." + room + "." + ev.Kind
}
