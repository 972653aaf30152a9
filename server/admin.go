package server

import (
	"encoding/json"
	"net/http"
)

// HandleMetrics 输出房间运行指标
// GET /metrics?room=lobby  单个房间
// GET /metrics             所有房间
func (g *Gateway) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if name := r.URL.Query().Get("room"); name != "" {
		room, ok := g.dir.Get(name)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"room":      name,
			"policy":    room.PolicyName(),
			"occupancy": room.Seats(),
			"metrics":   room.Metrics().Snapshot(),
		})
		return
	}

	rooms := map[string]any{}
	for _, info := range g.dir.List() {
		room, ok := g.dir.Get(info.Name)
		if !ok {
			continue
		}
		rooms[info.Name] = map[string]any{
			"policy":    info.Policy,
			"occupancy": info.Occupancy,
			"metrics":   room.Metrics().Snapshot(),
		}
	}
	writeJSON(w, map[string]any{"rooms": rooms})
}

// HandleRooms 列出所有房间、占用区域与玩家状态
// GET /admin/rooms
func (g *Gateway) HandleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{"rooms": g.dir.List()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_ = json.NewEncoder(w).Encode(v)
}
