package httpadapter

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// handleStream sends the conversation snapshot on connect and again after
// every change, until the client leaves or the conversation is closed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, pet domain.PetID) {
	log := observability.LoggerFromContext(r.Context()).With("pet_id", pet)

	conv, err := s.svc.Open(r.Context(), pet)
	if err != nil {
		internalError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws: upgrade error", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read side only exists to notice the client going away and to
	// answer pings.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn("ws: read error", "error", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	var sent uint64
	for {
		changes := conv.Changes()
		if snap := conv.Snapshot(); snap.Version != sent {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				log.Warn("ws: write error", "error", err)
				return
			}
			sent = snap.Version
		}

		select {
		case <-changes:
		case <-conv.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "conversation closed"),
				time.Now().Add(writeWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
