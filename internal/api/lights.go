package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tcpconnected/internal/audit"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/bridges/tcp"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/device"
)

// setLightStateRequest is the body of PUT /lights/{id}/state. Brightness
// is on the hub scale (0-255) and only applies when On is true.
type setLightStateRequest struct {
	On         *bool `json:"on"`
	Brightness *int  `json:"brightness,omitempty"`
}

func (s *Server) handleListLights(w http.ResponseWriter, _ *http.Request) {
	lights := s.lights.Lights()
	writeJSON(w, http.StatusOK, map[string]any{
		"lights": lights,
		"count":  len(lights),
	})
}

func (s *Server) handleGetLight(w http.ResponseWriter, r *http.Request) {
	view, err := s.lights.Light(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, tcp.ErrDeviceNotFound) {
			writeNotFound(w, "light not found")
			return
		}
		writeInternalError(w, "failed to get light")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSetLightState switches or dims a light. The response is 202: the
// returned view reflects the state before the follow-up refresh lands.
func (s *Server) handleSetLightState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setLightStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.On == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "on is required")
		return
	}
	if !*req.On && req.Brightness != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "brightness only applies when on is true")
		return
	}

	err := s.lights.SetLightState(r.Context(), id, *req.On, req.Brightness)
	switch {
	case err == nil:
	case errors.Is(err, tcp.ErrDeviceNotFound):
		writeNotFound(w, "light not found")
		return
	case errors.Is(err, tcp.ErrInvalidBrightness):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "brightness must be 0-255")
		return
	default:
		s.logger.Warn("light command failed", "device_id", id, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeGateway, "gateway rejected the command")
		return
	}

	user := usernameFrom(r.Context())
	s.logger.Info("light command", "device_id", id, "on", *req.On, "user", user)

	details := map[string]any{"on": *req.On}
	if req.Brightness != nil {
		details["brightness"] = *req.Brightness
	}
	s.recordAudit(r.Context(), audit.Entry{
		Action:   audit.ActionLightCommand,
		DeviceID: id,
		Username: user,
		Details:  details,
	})

	view, err := s.lights.Light(id)
	if err != nil {
		writeJSON(w, http.StatusAccepted, map[string]any{"id": id})
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

// handleLightHistory returns recorded state changes, newest first.
func (s *Server) handleLightHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "state history is not available")
		return
	}

	limit, ok := queryInt(r.URL.Query().Get("limit"), device.DefaultHistoryLimit, 1, device.MaxHistoryLimit)
	if !ok {
		writeBadRequest(w, "limit must be between 1 and "+strconv.Itoa(device.MaxHistoryLimit))
		return
	}

	id := chi.URLParam(r, "id")
	entries, err := s.history.StateHistory(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "light not found")
			return
		}
		s.logger.Error("failed to read state history", "device_id", id, "error", err)
		writeInternalError(w, "failed to read state history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"history":   entries,
		"count":     len(entries),
	})
}

// handleRefreshLights forces a gateway refresh outside the poll schedule.
func (s *Server) handleRefreshLights(w http.ResponseWriter, r *http.Request) {
	if err := s.lights.Refresh(r.Context()); err != nil {
		s.logger.Warn("manual refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeGateway, "gateway refresh failed")
		return
	}
	s.recordAudit(r.Context(), audit.Entry{
		Action:   audit.ActionRefresh,
		Username: usernameFrom(r.Context()),
	})

	lights := s.lights.Lights()
	writeJSON(w, http.StatusOK, map[string]any{
		"lights": lights,
		"count":  len(lights),
	})
}
