package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleexa/device-sync/internal/command"
	"github.com/fleexa/device-sync/internal/state"
)

// controlRequest is the body of POST /devices/{id}/control. Payload is a
// boolean for toggle/auto and a schedule object for schedule, mirroring the
// upstream wire format so the UI speaks one dialect.
type controlRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// handleListDevices returns the merged identity + live state view for every
// known device.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.store.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one device's merged view.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	device, ok := s.store.GetDevice(id)
	if !ok {
		writeNotFound(w, "device not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// handleControl dispatches a control intent with optimistic local feedback.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if s.commander == nil {
		writeInternalError(w, "command dispatch not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if _, ok := s.store.GetDevice(id); !ok {
		writeNotFound(w, "device not found: "+id)
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	var err error
	switch req.Type {
	case "toggle":
		var desired bool
		if jsonErr := json.Unmarshal(req.Payload, &desired); jsonErr != nil {
			writeBadRequest(w, "toggle payload must be a boolean")
			return
		}
		err = s.commander.Toggle(r.Context(), id, desired)

	case "auto":
		var desired bool
		if jsonErr := json.Unmarshal(req.Payload, &desired); jsonErr != nil {
			writeBadRequest(w, "auto payload must be a boolean")
			return
		}
		err = s.commander.SetAuto(r.Context(), id, desired)

	case "schedule":
		var schedule state.Schedule
		if jsonErr := json.Unmarshal(req.Payload, &schedule); jsonErr != nil {
			writeBadRequest(w, "schedule payload must be a schedule object")
			return
		}
		err = s.commander.SetSchedule(r.Context(), id, schedule)

	default:
		writeBadRequest(w, "unknown control type: "+req.Type)
		return
	}

	switch {
	case err == nil:
		device, _ := s.store.GetDevice(id)
		writeJSON(w, http.StatusOK, device)
	case errors.Is(err, command.ErrInFlight):
		writeConflict(w, "a command of this kind is already pending for the device")
	case errors.Is(err, command.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		// Rolled back: the local state is consistent again; the caller may
		// simply retry.
		writeError(w, http.StatusBadGateway, ErrCodeCommandFailed, err.Error())
	}
}

// handleConnection reports the push-channel status for connectivity
// indicators.
func (s *Server) handleConnection(w http.ResponseWriter, _ *http.Request) {
	if s.connection == nil {
		writeInternalError(w, "transport not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.connection.Status())
}

// handleRosterRefresh re-fetches the authoritative device listing, e.g.
// after a CRUD mutation performed in the dashboard.
func (s *Server) handleRosterRefresh(w http.ResponseWriter, r *http.Request) {
	if s.roster == nil {
		writeInternalError(w, "roster manager not configured")
		return
	}
	if err := s.roster.Refresh(r.Context()); err != nil {
		// The previous roster stays authoritative.
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": s.store.Count(),
	})
}
