package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"

	"racearena/config"
)

func newTestAPI(t *testing.T) (*API, *Coordinator, *http.ServeMux) {
	t.Helper()
	hub := NewHub(nil)
	coord := NewCoordinator(hub, Options{InstanceID: "adm", Rules: config.DefaultMatch(), Clock: clockwork.NewFakeClock()})
	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-coord.Done()
	})
	api := NewAPI(coord, hub)
	mux := http.NewServeMux()
	api.Routes(mux)
	return api, coord, mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestAdminConfigGet(t *testing.T) {
	_, _, mux := newTestAPI(t)
	rr := do(mux, http.MethodGet, "/admin/config", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	var body struct {
		Rules config.MatchConfig `json:"rules"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Rules.MatchSeconds != 120 || body.Rules.FinishScore != 10000 {
		t.Fatalf("rules = %+v", body.Rules)
	}
}

func TestAdminConfigPostWhileWaiting(t *testing.T) {
	_, coord, mux := newTestAPI(t)
	rr := do(mux, http.MethodPost, "/admin/config", `{"countdownSeconds":5,"finishScore":500}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", rr.Code, rr.Body.String())
	}
	st, err := coord.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Rules.CountdownSeconds != 5 || st.Rules.FinishScore != 500 || st.Countdown != 5 {
		t.Fatalf("rules not applied: %+v", st)
	}
	if st.Rules.MatchSeconds != 120 {
		t.Fatalf("untouched field changed: %+v", st.Rules)
	}
}

func TestAdminConfigPostQueuedDuringCountdown(t *testing.T) {
	_, coord, mux := newTestAPI(t)
	coord.Join("a", JoinMessage{Username: "alice"})

	rr := do(mux, http.MethodPost, "/admin/config", `{"matchSeconds":30}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["appliesAtReset"] != true {
		t.Fatalf("resp = %v", resp)
	}
	st, _ := coord.Status(context.Background())
	if st.PendingRules == nil || st.PendingRules.MatchSeconds != 30 || st.Rules.MatchSeconds != 120 {
		t.Fatalf("status = %+v", st)
	}
}

func TestAdminConfigConcurrentPartialUpdatesMerge(t *testing.T) {
	_, coord, mux := newTestAPI(t)
	coord.Join("a", JoinMessage{Username: "alice"})

	bodies := []string{`{"matchSeconds":30}`, `{"resetDelaySeconds":4}`, `{"finishScore":777}`}
	var wg sync.WaitGroup
	for _, b := range bodies {
		wg.Add(1)
		go func(b string) {
			defer wg.Done()
			if rr := do(mux, http.MethodPost, "/admin/config", b); rr.Code != http.StatusOK {
				t.Errorf("post %s: code = %d", b, rr.Code)
			}
		}(b)
	}
	wg.Wait()

	st, err := coord.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	p := st.PendingRules
	if p == nil || p.MatchSeconds != 30 || p.ResetDelaySeconds != 4 || p.FinishScore != 777 {
		t.Fatalf("pending = %+v", p)
	}
}

func TestAdminConfigRejectsInvalid(t *testing.T) {
	_, _, mux := newTestAPI(t)
	if rr := do(mux, http.MethodPost, "/admin/config", `{"defaultCharacter":"dragon"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid character: code = %d", rr.Code)
	}
	if rr := do(mux, http.MethodPost, "/admin/config", `{bad`); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json: code = %d", rr.Code)
	}
	if rr := do(mux, http.MethodPost, "/admin/config", `{"broadcastIntervalMs":10}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("broadcast interval is not hot-updatable: code = %d", rr.Code)
	}
	if rr := do(mux, http.MethodDelete, "/admin/config", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("delete: code = %d", rr.Code)
	}
}

func TestStatusAndMetrics(t *testing.T) {
	_, coord, mux := newTestAPI(t)
	coord.Join("a", JoinMessage{Username: "alice", Character: "pinky"})

	rr := do(mux, http.MethodGet, "/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	var st struct {
		InstanceID string        `json:"instanceId"`
		Phase      string        `json:"phase"`
		Countdown  int           `json:"countdown"`
		Players    []PlayerState `json:"players"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.InstanceID != "adm" || st.Phase != "countdown" || st.Countdown != 20 || len(st.Players) != 1 {
		t.Fatalf("status = %+v", st)
	}

	rr = do(mux, http.MethodGet, "/metrics", "")
	var m struct {
		Connections int            `json:"connections"`
		Metrics     map[string]any `json:"metrics"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Metrics["joins_accepted"] != float64(1) {
		t.Fatalf("metrics = %v", m.Metrics)
	}

	if rr := do(mux, http.MethodGet, "/healthz", ""); rr.Body.String() != "ok" {
		t.Fatalf("healthz = %q", rr.Body.String())
	}
}
