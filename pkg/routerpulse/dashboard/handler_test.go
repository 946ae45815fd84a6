package dashboard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/vpbank/routerpulse/models"
	"github.com/vpbank/routerpulse/pkg/routerpulse/dashboard"
	"github.com/vpbank/routerpulse/pkg/routerpulse/poller"
	"github.com/vpbank/routerpulse/pkg/routerpulse/store"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mocks
// ─────────────────────────────────────────────────────────────────────────────

type mockSource struct {
	mu   sync.Mutex
	view poller.View
}

func (m *mockSource) View() poller.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

func (m *mockSource) set(v poller.View) {
	m.mu.Lock()
	m.view = v
	m.mu.Unlock()
}

type mockTrigger struct{ calls atomic.Int32 }

func (m *mockTrigger) Trigger() bool {
	m.calls.Add(1)
	return true
}

func newServer(t *testing.T, src *mockSource, trig dashboard.Trigger, origins []string) (*httptest.Server, *dashboard.Handler, *dashboard.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := dashboard.NewHub(nil)
	go hub.Run(ctx)

	h := dashboard.NewHandler(src, trig, hub, origins, nil)
	r := mux.NewRouter()
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, h, hub
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + dashboard.RouteWS
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readView(t *testing.T, conn *websocket.Conn) dashboard.View {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var v dashboard.View
	if err := conn.ReadJSON(&v); err != nil {
		t.Fatalf("read: %v", err)
	}
	return v
}

func waitClients(t *testing.T, hub *dashboard.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != want {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.Clients(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// REST
// ─────────────────────────────────────────────────────────────────────────────

func TestHandleView(t *testing.T) {
	src := &mockSource{view: poller.View{
		HasData: true,
		Status:  poller.StatusLive,
		Record:  store.Record{Snapshot: models.Snapshot{CPU: "0.3"}},
	}}
	srv, _, _ := newServer(t, src, nil, nil)

	resp, err := http.Get(srv.URL + dashboard.RouteDashboard)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q", cc)
	}
	var v dashboard.View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Status != dashboard.StatusLive || v.CPU != "0.3" {
		t.Errorf("view = %+v", v)
	}
}

func TestHandleRefresh(t *testing.T) {
	trig := &mockTrigger{}
	srv, _, _ := newServer(t, &mockSource{}, trig, nil)

	resp, err := http.Post(srv.URL+dashboard.RouteRefresh, "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if trig.calls.Load() != 1 {
		t.Errorf("trigger calls = %d, want 1", trig.calls.Load())
	}
}

func TestHandleRefresh_NoTrigger(t *testing.T) {
	srv, _, _ := newServer(t, &mockSource{}, nil, nil)
	resp, err := http.Post(srv.URL+dashboard.RouteRefresh, "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// WebSocket
// ─────────────────────────────────────────────────────────────────────────────

func TestWS_InitialViewThenPublish(t *testing.T) {
	src := &mockSource{view: poller.View{Status: poller.StatusPending, Age: store.NeverUpdated}}
	srv, h, hub := newServer(t, src, nil, nil)

	conn := dial(t, srv, nil)
	if v := readView(t, conn); v.Status != dashboard.StatusConnecting {
		t.Errorf("initial status = %q", v.Status)
	}
	waitClients(t, hub, 1)

	src.set(poller.View{HasData: true, Status: poller.StatusLive, Record: store.Record{Snapshot: models.Snapshot{Mem: "1/2"}}})
	h.Publish(poller.CycleResult{Outcome: poller.OutcomeSuccess, Status: poller.StatusLive})

	v := readView(t, conn)
	if v.Status != dashboard.StatusLive || v.Mem != "1/2" {
		t.Errorf("pushed view = %+v", v)
	}
}

func TestWS_SkippedCycleNotPublished(t *testing.T) {
	src := &mockSource{}
	srv, h, hub := newServer(t, src, nil, nil)

	conn := dial(t, srv, nil)
	readView(t, conn)
	waitClients(t, hub, 1)

	src.set(poller.View{HasData: true, Record: store.Record{Snapshot: models.Snapshot{Mem: "skipped"}}})
	h.Publish(poller.CycleResult{Outcome: poller.OutcomeSkipped})

	src.set(poller.View{HasData: true, Status: poller.StatusOffline, Record: store.Record{Snapshot: models.Snapshot{Mem: "no-data"}}})
	h.Publish(poller.CycleResult{Outcome: poller.OutcomeNoData, Status: poller.StatusOffline})

	v := readView(t, conn)
	if v.Mem != "no-data" || v.Status != dashboard.StatusOffline {
		t.Errorf("first pushed view = %+v, want the no-data cycle", v)
	}
}

func TestWS_ClientDisconnectUnregisters(t *testing.T) {
	srv, _, hub := newServer(t, &mockSource{}, nil, nil)

	conn := dial(t, srv, nil)
	readView(t, conn)
	waitClients(t, hub, 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	waitClients(t, hub, 0)
}

func TestWS_OriginRejected(t *testing.T) {
	srv, _, _ := newServer(t, &mockSource{}, nil, []string{"https://dash.example.com"})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + dashboard.RouteWS
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected dial to fail for a disallowed origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("resp = %v, want 403", resp)
	}

	conn := dial(t, srv, http.Header{"Origin": []string{"https://dash.example.com"}})
	readView(t, conn)
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := dashboard.NewHub(nil)
	go hub.Run(ctx)

	if !hub.Broadcast([]byte(`{}`)) {
		t.Error("Broadcast should queue while the hub is running")
	}
	if hub.Clients() != 0 {
		t.Errorf("Clients = %d", hub.Clients())
	}
}
