package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleDrawConnection upgrades a viewer. The optional "client" query
// parameter is desktop or mobile.
func (h *WebSocketHandler) HandleDrawConnection(w http.ResponseWriter, r *http.Request) {
	class := parseClientClass(r.URL.Query().Get("client"))
	if err := h.connectionManager.UpgradeConnection(w, r, class); err != nil {
		// the upgrader has already written an HTTP error
		log.Error().Err(err).Str("class", string(class)).Msg("failed to upgrade WebSocket connection")
	}
}

func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.connectionManager.Stats())
}
