package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/tomaslejdung/sharehost/pkg/capture"
	"github.com/tomaslejdung/sharehost/pkg/coordinator"
	"github.com/tomaslejdung/sharehost/pkg/roomid"
	"github.com/tomaslejdung/sharehost/pkg/settings"
)

const msgpackContentType = "application/msgpack"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

type startSharingRequest struct {
	SourceID string `json:"source_id"`
}

type languageRequest struct {
	Lang string `json:"lang"`
}

func (s *Server) handleCreateWaiting(w http.ResponseWriter, r *http.Request) {
	info, err := s.coord.CreateWaitingSession(r.Context())
	if err != nil {
		var exhausted *roomid.ExhaustionError
		switch {
		case errors.Is(err, coordinator.ErrCreationSuperseded):
			writeAPIError(w, r, http.StatusConflict, "superseded", err.Error())
		case errors.As(err, &exhausted):
			writeAPIError(w, r, http.StatusServiceUnavailable, "room_ids_exhausted", err.Error())
		default:
			writeAPIError(w, r, http.StatusBadGateway, "signaling_unavailable", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleGetWaiting(w http.ResponseWriter, r *http.Request) {
	info, ok := s.coord.WaitingSession()
	if !ok {
		writeAPIError(w, r, http.StatusNotFound, "not_found", "no waiting session")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleResetWaiting(w http.ResponseWriter, _ *http.Request) {
	s.coord.ResetWaitingSession()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConfirm(w http.ResponseWriter, _ *http.Request) {
	s.coord.ConfirmConnected()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartSharing(w http.ResponseWriter, r *http.Request) {
	var req startSharingRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.SourceID) == "" {
		writeAPIError(w, r, http.StatusBadRequest, "invalid_request", "source_id is required")
		return
	}

	s.coord.StartSharing(req.SourceID)
	if s.settings != nil {
		if _, err := s.settings.Update(func(u *settings.UserSettings) { u.LastSourceID = req.SourceID }); err != nil {
			log.Warn().Err(err).Str("module", "control").Msg("persist last source")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWaitingSource(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"source_id": s.coord.WaitingSourceID()})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.coord.Sessions()})
}

func (s *Server) handleSessionSource(w http.ResponseWriter, r *http.Request) {
	src, ok := s.coord.SessionSourceID(chi.URLParam(r, "id"))
	if !ok {
		writeAPIError(w, r, http.StatusNotFound, "not_found", "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"source_id": src})
}

func (s *Server) handleDisconnectSession(w http.ResponseWriter, r *http.Request) {
	s.coord.DisconnectSession(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.coord.DisconnectAllAndReset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReclaimRoom(w http.ResponseWriter, r *http.Request) {
	s.coord.ReclaimRoomID(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"devices": s.coord.ConnectedDevices()})
}

func (s *Server) handlePendingDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.coord.PendingDevice()
	if !ok {
		writeAPIError(w, r, http.StatusNotFound, "not_found", "no pending device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleDisconnectDevice(w http.ResponseWriter, r *http.Request) {
	s.coord.DisconnectDevice(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisconnectAllDevices(w http.ResponseWriter, _ *http.Request) {
	s.coord.DisconnectAllDevices()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := settings.DefaultSettings().Language
	if s.settings != nil {
		u, err := s.settings.Load()
		if err != nil {
			writeAPIError(w, r, http.StatusInternalServerError, "settings_unavailable", err.Error())
			return
		}
		lang = u.Language
	}
	writeJSON(w, http.StatusOK, map[string]string{"lang": lang})
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Lang) == "" {
		writeAPIError(w, r, http.StatusBadRequest, "invalid_request", "lang is required")
		return
	}

	s.coord.AppLanguageChanged(req.Lang)
	if s.settings != nil {
		if _, err := s.settings.Update(func(u *settings.UserSettings) { u.Language = req.Lang }); err != nil {
			writeAPIError(w, r, http.StatusInternalServerError, "settings_unavailable", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "1" {
		if err := s.coord.RefreshSources(r.Context()); err != nil {
			writeAPIError(w, r, http.StatusBadGateway, "enumeration_failed", err.Error())
			return
		}
	}

	if strings.Contains(r.Header.Get("Accept"), msgpackContentType) {
		b, err := capture.EncodeSources(s.coord.Sources())
		if err != nil {
			writeAPIError(w, r, http.StatusInternalServerError, "encode_failed", err.Error())
			return
		}
		w.Header().Set("Content-Type", msgpackContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
		return
	}
	writeJSON(w, http.StatusOK, s.coord.SourcesSnapshot())
}

func (s *Server) handleSourceDisplay(w http.ResponseWriter, r *http.Request) {
	displayID, ok := s.coord.ResolveDisplayID(chi.URLParam(r, "id"))
	if !ok {
		writeAPIError(w, r, http.StatusNotFound, "not_found", "no display for source")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"display_id": displayID})
}

func (s *Server) handleDisplays(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]capture.Display{"displays": s.coord.Displays()})
}

func (s *Server) handleDisplaySize(w http.ResponseWriter, r *http.Request) {
	size, ok := s.coord.DisplaySize(chi.URLParam(r, "id"))
	if !ok {
		writeAPIError(w, r, http.StatusNotFound, "not_found", "display not found")
		return
	}
	writeJSON(w, http.StatusOK, size)
}

func (s *Server) handleSignaling(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.signal)
}

// handleEvents streams coordinator events until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so no event is missed.
	events, cancel := s.coord.Subscribe(64)
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "control").Msg("events upgrade failed")
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
