// Package control exposes the coordinator to the host UI over HTTP.
package control

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/tomaslejdung/sharehost/pkg/coordinator"
	"github.com/tomaslejdung/sharehost/pkg/settings"
)

// SignalInfo tells viewers where to connect.
type SignalInfo struct {
	Port     int    `json:"port"`
	ShareURL string `json:"share_url"`
}

// Config wires the control surface.
type Config struct {
	Coordinator *coordinator.Coordinator
	Settings    *settings.Store
	Signal      SignalInfo
}

// Server serves the control API for one coordinator.
type Server struct {
	coord    *coordinator.Coordinator
	settings *settings.Store
	signal   SignalInfo
	upgrader websocket.Upgrader
}

// NewRouter builds the chi router for the control surface. Every route
// except /healthz lives under /api/v1.
func NewRouter(cfg Config) http.Handler {
	s := &Server{
		coord:    cfg.Coordinator,
		settings: cfg.Settings,
		signal:   cfg.Signal,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Route("/sessions", func(sr chi.Router) {
			sr.Get("/", s.handleSessions)
			sr.Post("/waiting", s.handleCreateWaiting)
			sr.Get("/waiting", s.handleGetWaiting)
			sr.Delete("/waiting", s.handleResetWaiting)
			sr.Post("/waiting/confirm", s.handleConfirm)
			sr.Post("/waiting/start", s.handleStartSharing)
			sr.Get("/waiting/source", s.handleWaitingSource)
			sr.Get("/{id}/source", s.handleSessionSource)
			sr.Delete("/{id}", s.handleDisconnectSession)
		})
		v1.Post("/reset", s.handleReset)
		v1.Delete("/rooms/{id}", s.handleReclaimRoom)

		v1.Get("/devices", s.handleDevices)
		v1.Get("/devices/pending", s.handlePendingDevice)
		v1.Delete("/devices", s.handleDisconnectAllDevices)
		v1.Delete("/devices/{id}", s.handleDisconnectDevice)

		v1.Get("/language", s.handleGetLanguage)
		v1.Post("/language", s.handleSetLanguage)

		v1.Get("/sources", s.handleSources)
		v1.Get("/sources/{id}/display", s.handleSourceDisplay)
		v1.Get("/displays", s.handleDisplays)
		v1.Get("/displays/{id}/size", s.handleDisplaySize)

		v1.Get("/signaling", s.handleSignaling)
		v1.Get("/events", s.handleEvents)
	})

	return r
}

type apiError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var payload apiError
	payload.Error.Code = code
	payload.Error.Message = message
	payload.Error.RequestID = middleware.GetReqID(r.Context())
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
