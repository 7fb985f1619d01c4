package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler exposes the realtime surface: the upgrade endpoint and a
// small stats endpoint for operators.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	dispatcher        *CommandDispatcher
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager, dispatcher *CommandDispatcher) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		dispatcher:        dispatcher,
	}
}

// HandleDraftConnection upgrades the request to a WebSocket. The client is
// not in any room until it sends a join command, which also carries its
// identity; auth would slot in here before the upgrade.
func (h *WebSocketHandler) HandleDraftConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.UpgradeConnection(w, r, h.dispatcher); err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// HandleConnectionStats returns per-draft connection counts.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, perDraft := h.connectionManager.Stats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"total_connections": total,
		"active_drafts":     len(perDraft),
		"rooms":             perDraft,
	})
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/draft", h.HandleDraftConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
