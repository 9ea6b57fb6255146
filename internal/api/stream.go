package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/checklist-engine/internal/events"
	"github.com/terra-clan/checklist-engine/internal/models"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is written to event stream clients. The first message is
// a snapshot of the checklist, every following one carries an event.
type StreamMessage struct {
	Type      string                 `json:"type"` // snapshot or event
	Checklist *models.ChecklistView  `json:"checklist,omitempty"`
	Event     *events.ChecklistEvent `json:"event,omitempty"`
}

// handleChecklistEvents streams events for one checklist to an admin
func (s *Server) handleChecklistEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := s.manager.GetChecklist(r.Context(), id)
	if err != nil {
		respondManagerError(w, err, "get checklist", "id", id)
		return
	}

	s.streamEvents(w, r, view)
}

// handlePublicEvents streams events for the checklist behind a public link
func (s *Server) handlePublicEvents(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	view, err := s.manager.ResolveToken(r.Context(), token)
	if err != nil {
		respondManagerError(w, err, "get checklist")
		return
	}

	s.streamEvents(w, r, view)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, view *models.ChecklistView) {
	if s.broker == nil {
		respondError(w, http.StatusServiceUnavailable, "events_unavailable", "event streaming is not configured")
		return
	}

	// The stream outlives the request handler's context deadline
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	ch, err := s.broker.Subscribe(ctx, view.ID)
	if err != nil {
		slog.Error("failed to subscribe to events", "error", err, "checklist_id", view.ID)
		respondError(w, http.StatusServiceUnavailable, "events_unavailable", "event streaming is unavailable")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("event stream connected", "checklist_id", view.ID)

	// Read from WebSocket until the client goes away
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	err = s.sendStreamMessage(conn, StreamMessage{Type: "snapshot", Checklist: view})
loop:
	for err == nil {
		select {
		case ev, ok := <-ch:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(streamWriteWait))
				break loop
			}
			err = s.sendStreamMessage(conn, StreamMessage{Type: "event", Event: &ev})
		case <-ticker.C:
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait))
		}
	}

	cancel()
	conn.Close()
	<-readerDone
	slog.Info("event stream disconnected", "checklist_id", view.ID)
}

func (s *Server) sendStreamMessage(conn *websocket.Conn, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal stream message", "error", err)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send stream message", "error", err)
		return err
	}
	return nil
}
