package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/norfolkpine/collab-gateway/internal/metrics"
)

// handleResetConnections forcibly terminates sessions: every connection in a
// room, or only one user's connections when the x-user-id header is set.
// Closing is fire-and-forget; the response does not wait for the clients'
// acknowledgment.
func (a *App) handleResetConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	room := r.URL.Query().Get("room")
	if room == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Room name not provided"})
		return
	}

	var closed int
	user := r.Header.Get("x-user-id")
	if user == "" {
		closed = a.registry.CloseRoom(room)
	} else {
		closed = a.registry.CloseUser(room, user)
	}
	metrics.AdminResets.Inc()

	a.logger.Info("Administrative connection reset",
		slog.String("room", room),
		slog.String("user", user),
		slog.Int("closed", closed),
	)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Connections reset"})
}

func (a *App) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
