package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"birdnest/internal/monitor"
	"birdnest/internal/violation"
)

type fakeSource struct {
	mu        sync.Mutex
	records   map[string]violation.Violation
	status    monitor.Status
	snapshots int
	hub       *monitor.Hub
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		records: map[string]violation.Violation{
			"SN-1": {SerialNumber: "SN-1", Model: "Eagle", ClosestDistance: 5000},
		},
		status: monitor.Status{State: "running", Cycles: 3},
		hub:    monitor.NewHub(),
	}
}

func (f *fakeSource) Snapshot() map[string]violation.Violation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	out := make(map[string]violation.Violation, len(f.records))
	for k, v := range f.records {
		out[k] = v.Clone()
	}
	return out
}

func (f *fakeSource) Get(serial string) (violation.Violation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.records[serial]
	return v, ok
}

func (f *fakeSource) Status() monitor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSource) Subscribe(buffer int) (string, <-chan monitor.Update) {
	return f.hub.Subscribe(buffer)
}

func (f *fakeSource) Unsubscribe(id string) bool { return f.hub.Unsubscribe(id) }

type fakeWatchdog struct{ stalled bool }

func (f fakeWatchdog) Status() monitor.WatchdogStatus {
	return monitor.WatchdogStatus{Interval: time.Minute, Stalled: f.stalled}
}

func get(t *testing.T, h http.Handler, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func TestHandleViolations(t *testing.T) {
	src := newFakeSource()
	s := NewServer(":0", src)
	resp := get(t, s.Handler(), "/violations")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got map[string]violation.Violation
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["SN-1"].Model != "Eagle" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestHandleViolationBySerial(t *testing.T) {
	s := NewServer(":0", newFakeSource())
	resp := get(t, s.Handler(), "/violations/SN-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var v violation.Violation
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.ClosestDistance != 5000 {
		t.Errorf("closest = %v", v.ClosestDistance)
	}
	if resp := get(t, s.Handler(), "/violations/missing"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing serial status = %d", resp.StatusCode)
	}
}

func TestHandleHealth(t *testing.T) {
	cases := []struct {
		name     string
		state    string
		empty    int64
		stalled  bool
		wantCode int
		want     string
	}{
		{"healthy", "running", 0, false, http.StatusOK, "healthy"},
		{"stalled", "running", 0, true, http.StatusServiceUnavailable, "degraded"},
		{"empty feed", "running", 5, false, http.StatusServiceUnavailable, "degraded"},
		{"stopped", "stopped", 0, false, http.StatusServiceUnavailable, "stopped"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			src := newFakeSource()
			src.status = monitor.Status{State: c.state, EmptyReports: c.empty}
			s := NewServer(":0", src, WithWatchdog(fakeWatchdog{stalled: c.stalled}), WithDegradedThreshold(5))
			resp := get(t, s.Handler(), "/health")
			if resp.StatusCode != c.wantCode {
				t.Fatalf("code = %d, want %d", resp.StatusCode, c.wantCode)
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != c.want {
				t.Fatalf("status = %q, want %q", body["status"], c.want)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	s := NewServer(":0", newFakeSource(), WithWatchdog(fakeWatchdog{}))
	resp := get(t, s.Handler(), "/status")
	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Monitor.Cycles != 3 || body.Watchdog == nil || body.Health != "healthy" {
		t.Fatalf("unexpected status: %+v", body)
	}
}

func TestHandleMetrics(t *testing.T) {
	s := NewServer(":0", newFakeSource())
	resp := get(t, s.Handler(), "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "go_goroutines") {
		t.Fatalf("metrics output missing default collectors")
	}
}

func TestRejectsOtherMethods(t *testing.T) {
	s := NewServer(":0", newFakeSource())
	req := httptest.NewRequest(http.MethodPost, "/violations", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestWebSocketStream(t *testing.T) {
	src := newFakeSource()
	s := NewServer(":0", src)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first struct {
		Type string                         `json:"type"`
		Data map[string]violation.Violation `json:"data"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != "snapshot" || first.Data["SN-1"].Model != "Eagle" {
		t.Fatalf("unexpected first message: %+v", first)
	}

	v := violation.Violation{SerialNumber: "SN-2", ClosestDistance: 42}
	src.hub.Publish(monitor.Update{Serial: "SN-2", Violation: &v})
	src.hub.Publish(monitor.Update{Serial: "SN-1"})

	var upd struct {
		Type   string               `json:"type"`
		Serial string               `json:"serial"`
		Data   *violation.Violation `json:"data"`
	}
	if err := conn.ReadJSON(&upd); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if upd.Type != "update" || upd.Serial != "SN-2" || upd.Data == nil || upd.Data.ClosestDistance != 42 {
		t.Fatalf("unexpected update: %+v", upd)
	}
	upd.Data = nil
	if err := conn.ReadJSON(&upd); err != nil {
		t.Fatalf("read expiry: %v", err)
	}
	if upd.Serial != "SN-1" || upd.Data != nil {
		t.Fatalf("expected expiry for SN-1, got %+v", upd)
	}
}

func TestShutdownClosesWebSockets(t *testing.T) {
	src := newFakeSource()
	s := NewServer("127.0.0.1:0", src)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snap map[string]any
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}
