package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/techscire/scirecount-core/internal/broadcast"
	"github.com/techscire/scirecount-core/internal/device"
)

// handleListDevices returns every device in snapshot form, the same
// payload WebSocket clients receive.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	entries, err := s.broadcaster.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleGetDevice returns a single device in snapshot form.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("getting device", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, broadcast.EntryFromDevice(*d))
}
