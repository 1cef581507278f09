package uiapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/awaistahir/smart-tariff/internal/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const socketWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleJobSocket streams job snapshots as JSON text messages and closes the socket
// normally once the job has finished.
func (s *Server) handleJobSocket(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	updates, cancel := job.Subscribe()
	defer cancel()

	// the read side only watches for the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Ctx(r.Context()).DebugContext(r.Context(), "websocket read error", slog.Any("error", err))
				}
				return
			}
		}
	}()

	for {
		select {
		case st, ok := <-updates:
			conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
				return
			}
			if err := conn.WriteJSON(st); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
