package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/vpbank/routerpulse/pkg/routerpulse/poller"
)

// Routes mounted by Register.
const (
	RouteDashboard = "/api/dashboard"
	RouteRefresh   = "/api/refresh"
	RouteWS        = "/ws"
)

// Source supplies the current dashboard state. *poller.Ingestor implements it.
type Source interface {
	View() poller.View
}

// Trigger requests an immediate poll cycle. *scheduler.Scheduler implements it.
type Trigger interface {
	Trigger() bool
}

// Handler serves the dashboard view and its live feed.
type Handler struct {
	source   Source
	trigger  Trigger
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler builds a Handler. trigger may be nil, in which case refresh
// requests are answered but ignored. origins gates websocket upgrades; "*"
// or an empty list allows any origin.
func NewHandler(source Source, trigger Trigger, hub *Hub, origins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	h := &Handler{source: source, trigger: trigger, hub: hub, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 || slices.Contains(origins, "*") {
				return true
			}
			if slices.Contains(origins, origin) {
				return true
			}
			logger.Warn("dashboard: websocket origin rejected", "origin", origin)
			return false
		},
	}
	return h
}

// Register mounts the dashboard routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc(RouteDashboard, h.handleView).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc(RouteRefresh, h.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc(RouteWS, h.handleWS).Methods(http.MethodGet)
}

// Publish broadcasts the current view to websocket clients. Register it with
// Ingestor.OnCycle; skipped cycles change nothing and are not published.
func (h *Handler) Publish(res poller.CycleResult) {
	if res.Outcome == poller.OutcomeSkipped {
		return
	}
	msg, err := h.encode()
	if err != nil {
		h.logger.Error("dashboard: encode view failed", "error", err.Error())
		return
	}
	h.hub.Broadcast(msg)
}

func (h *Handler) encode() ([]byte, error) {
	return json.Marshal(Build(h.source.View()))
}

func (h *Handler) handleView(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, Build(h.source.View()))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	queued := false
	if h.trigger != nil {
		queued = h.trigger.Trigger()
	}
	h.logger.Debug("dashboard: manual refresh requested", "queued", queued)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "queued": queued})
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn("dashboard: websocket upgrade failed", "error", err.Error(), "remote", r.RemoteAddr)
		return
	}

	initial, err := h.encode()
	if err != nil {
		h.logger.Error("dashboard: encode view failed", "error", err.Error())
		initial = nil
	}
	h.hub.Attach(r.Context(), conn, initial)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
