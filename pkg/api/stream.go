package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is enforced by the router middleware; the rig network is
	// private, so origin checking is not repeated here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamSample is the wire shape for one pushed status sample.
type streamSample struct {
	State    string       `json:"state"`
	Position positionBody `json:"position"`
	At       time.Time    `json:"at"`
}

// handleStream upgrades to a WebSocket and pushes every status sample
// the tracker publishes. Slow readers lose samples rather than backing
// up the reader loop; a dropped connection just ends the subscription.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	samples, release := s.ctrl.Subscribe()
	defer release()

	// Reads are discarded; their only job is detecting the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case sample, ok := <-samples:
			if !ok {
				return
			}
			out := streamSample{
				State:    sample.State.String(),
				Position: s.positionBody(sample.Position),
				At:       sample.At,
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
