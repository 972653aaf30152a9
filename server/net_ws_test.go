package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) (*httptest.Server, *Directory) {
	t.Helper()
	dir := NewDirectory(relayOptions(2), time.Minute)
	srv := httptest.NewServer(NewGateway(dir, "lobby").Routes())
	t.Cleanup(func() {
		srv.Close()
		dir.Close()
	})
	return srv, dir
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/connect" + query
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readType(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var m map[string]any
		require.NoError(t, ws.ReadJSON(&m))
		if m["type"] == typ {
			return m
		}
	}
}

func TestGatewayRejectsPlainHTTP(t *testing.T) {
	srv, _ := newTestGateway(t)
	resp, err := http.Get(srv.URL + "/connect")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "Expected websocket")
}

func TestGatewayCORS(t *testing.T) {
	srv, _ := newTestGateway(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"))
	assert.Empty(t, body)

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestGatewayJoinAndCapacity(t *testing.T) {
	srv, _ := newTestGateway(t)
	url := wsURL(srv, "?room=duel")

	ws0 := dial(t, url)
	hello0 := readType(t, ws0, MsgHello)
	assert.Equal(t, 0.0, hello0["zone"])
	assert.NotEmpty(t, hello0["playerId"])

	ws1 := dial(t, url)
	hello1 := readType(t, ws1, MsgHello)
	assert.Equal(t, 1.0, hello1["zone"])

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// 其他房间不受影响
	other := dial(t, wsURL(srv, "?room=elsewhere"))
	assert.Equal(t, 0.0, readType(t, other, MsgHello)["zone"])

	require.NoError(t, ws0.Close())
	require.Eventually(t, func() bool {
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return false
		}
		defer ws.Close()
		_ = ws.SetReadDeadline(time.Now().Add(time.Second))
		var hello HelloMessage
		return ws.ReadJSON(&hello) == nil && hello.Type == MsgHello && hello.Zone == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGatewayRelaysFireEndToEnd(t *testing.T) {
	srv, _ := newTestGateway(t)
	ws0 := dial(t, wsURL(srv, ""))
	hello0 := readType(t, ws0, MsgHello)
	ws1 := dial(t, wsURL(srv, ""))
	readType(t, ws1, MsgHello)

	fire := `{"type":"fire","bulletType":"missile","x":3,"y":4,"angle":1.5,"bulletId":"m-1","targetId":"someone"}`
	require.NoError(t, ws0.WriteMessage(websocket.TextMessage, []byte(fire)))

	got := readType(t, ws1, MsgFire)
	assert.Equal(t, hello0["playerId"], got["fromId"])
	assert.Equal(t, "someone", got["targetId"])

	require.NoError(t, ws0.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)))
	errMsg := readType(t, ws0, MsgError)
	assert.Contains(t, errMsg["message"], "nope")
}

func TestGatewayAdminEndpoints(t *testing.T) {
	srv, _ := newTestGateway(t)
	ws := dial(t, wsURL(srv, "?room=stats"))
	readType(t, ws, MsgHello)

	resp, err := http.Get(srv.URL + "/metrics?room=stats")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "stats", body["room"])
	metrics, ok := body["metrics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1.0, metrics["joins"])

	resp, err = http.Get(srv.URL + "/metrics?room=missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/admin/rooms")
	require.NoError(t, err)
	var rooms struct {
		Rooms []RoomInfo `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	resp.Body.Close()
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, "stats", rooms.Rooms[0].Name)
	assert.Equal(t, 1, rooms.Rooms[0].Occupancy)
	assert.Equal(t, []int{0}, rooms.Rooms[0].Zones)
}
