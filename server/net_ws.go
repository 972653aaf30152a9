package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 1 << 16
	sendQueueSize  = 64
)

// Conn 房间视角下的一条连接：发送即忘，关闭幂等
type Conn interface {
	Send([]byte) error
	Close() error
}

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
	}
}

// Send 将要发送的消息压入队列（非阻塞，满则丢弃并返回错误）
func (c *ClientConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		// 为了实时性，丢弃本条（防止阻塞 Tick）
		return ErrSendQueueFull
	}
}

// Close 关闭发送队列，写协程随后发送 close 帧并关闭底层连接
func (c *ClientConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息并投递给房间；退出时通知房间移除该会话
func (c *ClientConn) readPump(room *Room) {
	defer c.ws.Close()
	defer room.Leave(c)
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				Log.Debugw("read error", "room", room.Name, "err", err)
			}
			return
		}
		// 文本帧与二进制帧都按 UTF-8 JSON 处理
		room.Deliver(c, payload)
	}
}

// Gateway HTTP 边界：升级、容量拒绝、CORS 与管理接口
type Gateway struct {
	dir         *Directory
	defaultRoom string
	upgrader    websocket.Upgrader
}

func NewGateway(dir *Directory, defaultRoom string) *Gateway {
	return &Gateway{
		dir:         dir,
		defaultRoom: defaultRoom,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 与 CORS 一致：允许所有来源
				return true
			},
		},
	}
}

// Routes 注册所有路由
func (g *Gateway) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/connect", g.HandleWS)
	mux.HandleFunc("/ws", g.HandleWS)
	mux.HandleFunc("/metrics", g.HandleMetrics)
	mux.HandleFunc("/admin/rooms", g.HandleRooms)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", g.HandleRoot)
	return mux
}

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type",
}

// HandleRoot 预检请求返回开放 CORS 头且无 body，其余返回 OK
func (g *Gateway) HandleRoot(w http.ResponseWriter, r *http.Request) {
	for k, v := range corsHeaders {
		w.Header().Set(k, v)
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	_, _ = w.Write([]byte("OK"))
}

// HandleWS WebSocket 接入：/connect?room=lobby
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		g.HandleRoot(w, r)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "Expected websocket", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("room")
	if name == "" {
		name = g.defaultRoom
	}

	// 升级前占座：满员时直接拒绝，不会创建任何会话
	room, err := g.dir.Reserve(name)
	if err != nil {
		if errors.Is(err, ErrRoomFull) {
			Log.Infof("room full: %s", name)
			http.Error(w, "Room is full", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Room unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		room.CancelReservation()
		Log.Warnf("upgrade error: room=%s err=%v", name, err)
		return
	}

	client := NewClientConn(ws)
	go client.writePump()
	if _, err := room.Join(client); err != nil {
		Log.Warnf("join failed: room=%s err=%v", name, err)
		_ = client.Close()
		return
	}
	go client.readPump(room)
}
