package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"carechat/auth"
	"carechat/bus"
)

// NewRouter wires the full HTTP surface. Everything sits behind bearer
// token auth; the push channel is the websocket endpoint.
func NewRouter(h *Handler, hub *bus.Hub, tokens *auth.Tokens) *mux.Router {
	r := mux.NewRouter()
	r.Use(tokens.Middleware)

	r.HandleFunc("/messages", h.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/unread", h.Unread).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id:[0-9]+}", h.EditMessage).Methods(http.MethodPatch)
	r.HandleFunc("/messages/{id:[0-9]+}", h.DeleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id:[0-9]+}/delivered", h.MarkDelivered).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id:[0-9]+}/read", h.MarkRead).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id:[0-9]+}/reaction", h.SetReaction).Methods(http.MethodPut)

	r.HandleFunc("/conversations", h.ListConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{conversationId}/messages", h.ConversationMessages).Methods(http.MethodGet)
	r.HandleFunc("/users/{userId}/messages", h.UserMessages).Methods(http.MethodGet)
	r.HandleFunc("/contacts", h.Contacts).Methods(http.MethodGet)
	r.HandleFunc("/typing", h.Typing).Methods(http.MethodPost)

	r.HandleFunc("/audio/upload", h.UploadAudio).Methods(http.MethodPost)
	r.HandleFunc("/audio/download/{id}", h.DownloadAudio).Methods(http.MethodGet)
	r.HandleFunc("/audio/stream/{id}", h.StreamAudio).Methods(http.MethodGet)

	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		h.Subscribe(w, r, hub)
	}).Methods(http.MethodGet)

	return r
}
