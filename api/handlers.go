package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"carechat/auth"
	"carechat/domain"
	"carechat/errors"
	"carechat/services"
	"carechat/storage"
)

// Handler binds the messaging services to the HTTP surface.
type Handler struct {
	log           *slog.Logger
	messages      services.IMessageService
	conversations services.IConversationService
	audio         *storage.AudioStore
}

func NewHandler(
	log *slog.Logger,
	messages services.IMessageService,
	conversations services.IConversationService,
	audio *storage.AudioStore,
) *Handler {
	return &Handler{log: log, messages: messages, conversations: conversations, audio: audio}
}

// SendMessage handles POST /messages. The sender is always the
// authenticated caller; a spoofed senderId in the body is impossible.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	messageType, err := domain.ParseMessageType(req.Type)
	if err != nil {
		writeError(w, err)
		return
	}

	cmd := services.SendCommand{
		SenderID:   auth.UserID(r),
		ReceiverID: req.ReceiverID,
		Type:       messageType,
		Content:    req.Content,
	}
	if messageType == domain.TypeAudio {
		if req.AudioID == "" {
			writeError(w, fmt.Errorf("%w: audioId is required for AUDIO", errors.ErrInvalidArgument))
			return
		}
		ref, err := h.audio.Describe(req.AudioID, req.DurationSeconds)
		if err != nil {
			writeError(w, err)
			return
		}
		cmd.Attachment = &ref
	}

	message, err := h.messages.Send(cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, message)
}

// ConversationMessages handles GET /conversations/{conversationId}/messages.
func (h *Handler) ConversationMessages(w http.ResponseWriter, r *http.Request) {
	conv := domain.ConversationID(mux.Vars(r)["conversationId"])
	limit, cursor := pagination(r)
	messages, next, err := h.messages.History(conv, limit, cursor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"messages": messages, "cursor": next})
}

// UserMessages handles GET /users/{userId}/messages: everything the
// caller exchanged with the given user, oldest first.
func (h *Handler) UserMessages(w http.ResponseWriter, r *http.Request) {
	conv, err := domain.DeriveConversation(auth.UserID(r), mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, err)
		return
	}
	limit, cursor := pagination(r)
	messages, next, err := h.messages.History(conv, limit, cursor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"messages": messages, "cursor": next})
}

func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.messages.MarkDelivered)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.messages.MarkRead)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, advance func(uint64) (domain.Message, error)) {
	id, err := messageID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	message, err := advance(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, message)
}

// EditMessage handles PATCH /messages/{id}; owner only.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req editMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	message, err := h.messages.Edit(id, auth.UserID(r), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, message)
}

// DeleteMessage handles DELETE /messages/{id}; owner only, soft delete.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	message, err := h.messages.SoftDelete(id, auth.UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, message)
}

// SetReaction handles PUT /messages/{id}/reaction. The slot is last
// write wins; an empty reaction clears it.
func (h *Handler) SetReaction(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req reactionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	message, err := h.messages.React(id, req.Reaction)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, message)
}

// Typing handles POST /typing: ephemeral, nothing persisted.
func (h *Handler) Typing(w http.ResponseWriter, r *http.Request) {
	var req typingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	err := h.messages.Typing(auth.UserID(r), domain.ConversationID(req.ConversationID), req.Typing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

// ListConversations handles GET /conversations for the caller.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.conversations.List(auth.UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, summaries)
}

// Contacts handles GET /contacts: directory profiles the caller may message.
func (h *Handler) Contacts(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.conversations.Correspondents(auth.UserID(r)))
}

// Unread handles GET /messages/unread for the caller.
func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messages.Unread(auth.UserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, messages)
}

func messageID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: message id", errors.ErrInvalidArgument)
	}
	return id, nil
}

func pagination(r *http.Request) (int, *string) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	return limit, cursor
}
