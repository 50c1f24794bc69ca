package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// API 管理与监控接口
type API struct {
	coord *Coordinator
	hub   *Hub
}

func NewAPI(coord *Coordinator, hub *Hub) *API {
	return &API{coord: coord, hub: hub}
}

// Routes 注册管理接口
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/config", a.HandleAdminConfig)
	mux.HandleFunc("/metrics", a.HandleMetrics)
	mux.HandleFunc("/status", a.HandleStatus)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

// HandleAdminConfig 提供对局规则的读取与更新（热更新）
// GET /admin/config   返回当前规则与排队中的规则
// POST /admin/config  以 JSON 载荷更新部分字段；非等待阶段时在下一次重置生效
func (a *API) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	switch r.Method {
	case http.MethodGet:
		st, err := a.coord.Status(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": st.Rules, "pending": st.PendingRules})
		return
	case http.MethodPost:
		var patch RulesPatch
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&patch); err != nil {
			http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}
		queued, err := a.coord.UpdateRules(ctx, patch)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ErrStopped) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}
		Log.Infof("config updated via admin (queued=%t)", queued)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "appliesAtReset": queued})
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
}

// HandleMetrics 输出运行指标
// GET /metrics
func (a *API) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"instance":    a.coord.InstanceID(),
		"connections": a.hub.Len(),
		"metrics":     a.coord.Metrics().Snapshot(),
	})
}

// HandleStatus 输出当前阶段、计数器与玩家表
// GET /status
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	st, err := a.coord.Status(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
