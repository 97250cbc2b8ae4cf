package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"carechat/auth"
	"carechat/bus"
	"carechat/domain"
	"carechat/domain/event"
)

const (
	wsWriteWait  = 10 * time.Second
	wsSinkBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Token auth happens before the upgrade; origin is not the gate.
		return true
	},
}

// wsFrame is the only inbound frame shape: clients push typing signals
// over the socket instead of issuing an HTTP call per keystroke.
type wsFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Typing         bool   `json:"typing"`
}

// Subscribe handles GET /ws. The connection is registered on the
// caller's private channel, the global presence topic, and each
// conversation topic named in the conversations query parameter.
// Presence goes online on connect and offline on disconnect.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request, hub *bus.Hub) {
	userID := auth.UserID(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "user", userID, "error", err)
		return
	}

	sink := bus.NewChannelSink(h.log, wsSinkBuffer)
	var cancels []func()
	cancels = append(cancels, hub.SubscribeUser(userID, sink))
	cancels = append(cancels, hub.Subscribe(bus.PresenceTopic, sink))
	for _, conv := range splitList(r.URL.Query().Get("conversations")) {
		cancels = append(cancels, hub.Subscribe(bus.ConversationTopic(domain.ConversationID(conv)), sink))
	}

	_ = h.messages.Presence(userID, true)
	h.log.Info("Client connected", "user", userID)

	done := make(chan struct{})
	go h.writePump(conn, sink, done)
	h.readPump(conn, userID)

	close(done)
	for _, cancel := range cancels {
		cancel()
	}
	_ = h.messages.Presence(userID, false)
	h.log.Info("Client disconnected", "user", userID)
}

// writePump serializes events to the socket until the reader exits.
func (h *Handler) writePump(conn *websocket.Conn, sink *bus.ChannelSink, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case e := <-sink.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event.Wrap(e)); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound frames until the client goes away. Only
// typing frames are understood; anything else is ignored.
func (h *Handler) readPump(conn *websocket.Conn, userID string) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type == "typing" && frame.ConversationID != "" {
			_ = h.messages.Typing(userID, domain.ConversationID(frame.ConversationID), frame.Typing)
		}
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
