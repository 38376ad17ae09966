package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/techscire/scirecount-core/internal/audit"
	"github.com/techscire/scirecount-core/internal/client"
)

// createClientRequest is the request body for POST /api/clients.
type createClientRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Plan           string `json:"plan"`
	Status         string `json:"status"`
	LocationsCount int    `json:"locationsCount"`
}

// handleListClients returns all clients, newest first.
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.clients.List(r.Context())
	if err != nil {
		s.logger.Error("listing clients", "error", err)
		writeInternalError(w, "failed to list clients")
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

// handleGetClient returns a single client.
func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.clients.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, client.ErrClientNotFound) {
			writeNotFound(w, "client not found")
			return
		}
		s.logger.Error("getting client", "client_id", id, "error", err)
		writeInternalError(w, "failed to get client")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleCreateClient registers a client. Plan and status default to
// client.DefaultPlan and client.DefaultStatus.
func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	c := &client.Client{
		Name:           req.Name,
		Email:          req.Email,
		Plan:           req.Plan,
		Status:         req.Status,
		LocationsCount: req.LocationsCount,
	}
	if err := s.clients.Create(r.Context(), c); err != nil {
		switch {
		case errors.Is(err, client.ErrInvalidClient):
			writeValidationError(w, err.Error())
		case errors.Is(err, client.ErrEmailTaken):
			writeConflict(w, "a client with this email already exists")
		default:
			s.logger.Error("creating client", "error", err)
			writeInternalError(w, "failed to create client")
		}
		return
	}

	actor, _ := r.Context().Value(ctxKeySubject).(string)
	s.logger.Info("client created", "client_id", c.ID, "created_by", actor)
	s.recordAudit(r.Context(), &audit.Entry{
		Action:     audit.ActionCreate,
		EntityType: audit.EntityClient,
		EntityID:   c.ID,
		Actor:      actor,
		Details:    map[string]any{"email": c.Email, "plan": c.Plan},
	})
	writeJSON(w, http.StatusCreated, c)
}
