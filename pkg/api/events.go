package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"huddle/pkg/auth"
	"huddle/pkg/logger"
	"huddle/pkg/notify"
	"huddle/pkg/service"
	"huddle/pkg/utils"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// eventsHandler streams hub events to a client over a websocket. Every
// connection subscribes to the caller's user topic and the broadcast
// topic (fixed-channel activity), and optionally to one conversation
// topic; whenever the user's state changes the handler also pushes a
// freshly computed unread snapshot, so badge views never have to poll.
type eventsHandler struct {
	svc      *service.Service
	hub      *notify.Hub
	upgrader websocket.Upgrader
}

func newEventsHandler(svc *service.Service, hub *notify.Hub) *eventsHandler {
	return &eventsHandler{
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// origin is enforced by the gateway middleware
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// frame is the wire envelope pushed to the client.
type frame struct {
	Event  *notify.Event   `json:"event,omitempty"`
	Unread map[string]bool `json:"unread,omitempty"`
}

func (h *eventsHandler) serve(w http.ResponseWriter, r *http.Request) {
	userID, status, msg := auth.ResolveUser(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}

	convID := r.URL.Query().Get("conversation")
	if convID != "" {
		// membership check before we start streaming the topic
		if _, err := h.svc.History(userID, convID, 1); err != nil {
			utils.JSONError(w, http.StatusForbidden, "forbidden")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}
	defer conn.Close()

	userSub := h.hub.Subscribe(notify.UserTopic(userID))
	defer userSub.Close()
	// channel activity is broadcast: it has no per-user topic
	bcastSub := h.hub.Subscribe(notify.BroadcastTopic())
	defer bcastSub.Close()
	convEvents := (<-chan notify.Event)(nil)
	if convID != "" {
		convSub := h.hub.Subscribe(notify.ConversationTopic(convID))
		defer convSub.Close()
		convEvents = convSub.C
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Debug("ws_connected", zap.String("user", userID), zap.String("conversation", convID))

	// initial unread snapshot, so the client renders without a fetch
	if flags, err := h.svc.Unread(userID); err == nil {
		if werr := h.writeFrame(conn, frame{Unread: flags}); werr != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev := <-userSub.C:
			if err := h.pushWithUnread(conn, userID, ev); err != nil {
				return
			}
		case ev := <-bcastSub.C:
			if err := h.pushWithUnread(conn, userID, ev); err != nil {
				return
			}
		case ev := <-convEvents:
			if err := h.writeFrame(conn, frame{Event: &ev}); err != nil {
				return
			}
		}
	}
}

// pushWithUnread forwards the event and, when it can move a badge,
// follows up with a freshly computed unread snapshot.
func (h *eventsHandler) pushWithUnread(conn *websocket.Conn, userID string, ev notify.Event) error {
	if err := h.writeFrame(conn, frame{Event: &ev}); err != nil {
		return err
	}
	if ev.Type == notify.EventConversationChange || ev.Type == notify.EventReadStateChange {
		if flags, err := h.svc.Unread(userID); err == nil {
			return h.writeFrame(conn, frame{Unread: flags})
		}
	}
	return nil
}

// writeFrame marshals through a pooled buffer to keep per-event
// allocations off the hot path.
func (h *eventsHandler) writeFrame(conn *websocket.Conn, f frame) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(f); err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, buf.B)
}
