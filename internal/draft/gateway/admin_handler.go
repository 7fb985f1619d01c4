package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/courtvision/draftroom/internal/draft/coordinator"
	"github.com/courtvision/draftroom/internal/draft/engine"
	"github.com/courtvision/draftroom/internal/models"
)

// AdminService is the administrative slice of the coordinator: what the
// commissioner tooling calls over HTTP rather than over the socket.
type AdminService interface {
	ConfigureDraft(leagueID uuid.UUID, settings models.DraftSettings, shuffleOrder bool) (*coordinator.Room, error)
	LoadDraft(ctx context.Context, leagueID uuid.UUID) (*coordinator.Room, error)
	StartDraft(ctx context.Context, draftID uuid.UUID) error
	ResetDraft(ctx context.Context, draftID uuid.UUID) error
	Room(draftID uuid.UUID) (*coordinator.Room, bool)
}

// AdminHandler serves the commissioner endpoints for configuring, starting
// and resetting drafts, plus a snapshot endpoint for non-socket consumers.
type AdminHandler struct {
	service AdminService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(service AdminService) *AdminHandler {
	return &AdminHandler{service: service}
}

type configureDraftRequest struct {
	LeagueID     uuid.UUID            `json:"league_id"`
	Settings     models.DraftSettings `json:"settings"`
	ShuffleOrder bool                 `json:"shuffle_order"`
}

type configureDraftResponse struct {
	DraftID  uuid.UUID `json:"draft_id"`
	LeagueID uuid.UUID `json:"league_id"`
}

type draftIDRequest struct {
	DraftID uuid.UUID `json:"draft_id"`
}

type loadDraftRequest struct {
	LeagueID uuid.UUID `json:"league_id"`
}

// HandleConfigureDraft creates a room for a league in the NotStarted state.
func (h *AdminHandler) HandleConfigureDraft(w http.ResponseWriter, r *http.Request) {
	var req configureDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LeagueID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "league_id is required")
		return
	}

	room, err := h.service.ConfigureDraft(req.LeagueID, req.Settings, req.ShuffleOrder)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, configureDraftResponse{
		DraftID:  room.DraftID(),
		LeagueID: room.LeagueID(),
	})
}

// HandleLoadDraft materializes a room from a stored league configuration.
func (h *AdminHandler) HandleLoadDraft(w http.ResponseWriter, r *http.Request) {
	var req loadDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LeagueID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "league_id is required")
		return
	}

	room, err := h.service.LoadDraft(r.Context(), req.LeagueID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configureDraftResponse{
		DraftID:  room.DraftID(),
		LeagueID: room.LeagueID(),
	})
}

// HandleStartDraft transitions a configured draft to InProgress and starts
// its clock.
func (h *AdminHandler) HandleStartDraft(w http.ResponseWriter, r *http.Request) {
	draftID, ok := decodeDraftID(w, r)
	if !ok {
		return
	}
	if err := h.service.StartDraft(r.Context(), draftID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// HandleResetDraft clears a draft back to NotStarted.
func (h *AdminHandler) HandleResetDraft(w http.ResponseWriter, r *http.Request) {
	draftID, ok := decodeDraftID(w, r)
	if !ok {
		return
	}
	if err := h.service.ResetDraft(r.Context(), draftID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// HandleDraftSnapshot returns the authoritative draft view over plain HTTP,
// for dashboards and tooling that do not hold a socket.
func (h *AdminHandler) HandleDraftSnapshot(w http.ResponseWriter, r *http.Request) {
	draftIDStr := r.URL.Query().Get("draft_id")
	draftID, err := uuid.Parse(draftIDStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid draft_id")
		return
	}
	room, ok := h.service.Room(draftID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown draft")
		return
	}
	writeJSON(w, http.StatusOK, room.Snapshot())
}

// RegisterRoutes registers admin routes with an HTTP mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /drafts/configure", h.HandleConfigureDraft)
	mux.HandleFunc("POST /drafts/load", h.HandleLoadDraft)
	mux.HandleFunc("POST /drafts/start", h.HandleStartDraft)
	mux.HandleFunc("POST /drafts/reset", h.HandleResetDraft)
	mux.HandleFunc("GET /drafts/snapshot", h.HandleDraftSnapshot)
}

func decodeDraftID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req draftIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return uuid.Nil, false
	}
	if req.DraftID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "draft_id is required")
		return uuid.Nil, false
	}
	return req.DraftID, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrBadSettings):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, coordinator.ErrUnknownDraft):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrDraftStalled):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("admin request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
