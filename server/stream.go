package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pthm-cable/protolab/sim"
)

// Stream message types.
const (
	MessageSession      = "session_created"
	MessageSnapshot     = "snapshot"
	MessageStageAdvance = "stage_advanced"
)

// streamBuffer holds stage events for a slow client; a full reset cycle fits.
const streamBuffer = 32

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// StreamMessage is one frame on the /ws stream.
type StreamMessage struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
	Snapshot  *SnapshotResponse `json:"snapshot,omitempty"`
	Event     *sim.StageEvent   `json:"event,omitempty"`
}

func sendJSON(ws *websocket.Conn, v any) error {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("failed to write websocket message", "error", err)
	}
	return err
}

// handleStream pushes periodic snapshots and every stage advance to the client.
// Client frames are read only to notice disconnects.
func (s *Server) handleStream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	sessionID := uuid.New().String()
	slog.Info("stream client connected", "session_id", sessionID)

	events := make(chan sim.StageEvent, streamBuffer)
	cancel := s.sim.OnStageAdvance(func(ev sim.StageEvent) {
		select {
		case events <- ev:
		default:
			slog.Warn("stream client lagging, dropping stage event", "session_id", sessionID, "stage", ev.Stage.String())
		}
	})
	defer cancel()

	ticker := s.opts.Clock.Ticker(s.opts.SnapshotInterval)
	defer ticker.Stop()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := sendJSON(ws, StreamMessage{Type: MessageSession, SessionID: sessionID, RunID: s.sim.RunID()}); err != nil {
		return
	}

	for {
		select {
		case <-gone:
			slog.Info("stream client disconnected", "session_id", sessionID)
			return
		case <-s.closing:
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case ev := <-events:
			if err := sendJSON(ws, StreamMessage{Type: MessageStageAdvance, Event: &ev}); err != nil {
				return
			}
		case <-ticker.C:
			snap := s.snapshot()
			if err := sendJSON(ws, StreamMessage{Type: MessageSnapshot, Snapshot: &snap}); err != nil {
				return
			}
		}
	}
}
