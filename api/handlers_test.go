package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"carechat/auth"
	"carechat/bus"
	"carechat/directory"
	"carechat/domain"
	"carechat/domain/event"
	"carechat/repositories"
	"carechat/services"
	"carechat/storage"
)

type testServer struct {
	server *httptest.Server
	tokens *auth.Tokens
	hub    *bus.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repository, err := repositories.NewMessageRepository(db, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close() })

	audioStore, err := storage.NewAudioStore(t.TempDir(), log)
	require.NoError(t, err)

	userDirectory := directory.NewStatic(
		domain.Profile{ID: "3", DisplayName: "Asha", Email: "asha@example.com"},
		domain.Profile{ID: "7", DisplayName: "Binta", Email: "binta@example.com"},
	)

	hub := bus.NewHub(log)
	messageService := services.NewMessageService(repository, hub, userDirectory, audioStore, log)
	conversationService := services.NewConversationService(repository, userDirectory, log)
	tokens := auth.NewTokens("test-signing-key", time.Hour)

	handler := NewHandler(log, messageService, conversationService, audioStore)
	server := httptest.NewServer(NewRouter(handler, hub, tokens))
	t.Cleanup(server.Close)

	return &testServer{server: server, tokens: tokens, hub: hub}
}

func (ts *testServer) do(t *testing.T, userID, method, path string, body any) (*http.Response, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	request, err := http.NewRequest(method, ts.server.URL+path, reader)
	require.NoError(t, err)
	token, err := ts.tokens.Generate(userID)
	require.NoError(t, err)
	request.Header.Set("Authorization", "Bearer "+token)

	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	t.Cleanup(func() { _ = response.Body.Close() })

	var env envelope
	require.NoError(t, json.NewDecoder(response.Body).Decode(&env))
	return response, env
}

type recordingSink struct {
	events chan event.DomainEvent
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan event.DomainEvent, 16)}
}

func (s *recordingSink) Consume(e event.DomainEvent) {
	s.events <- e
}

// The full happy path: send, fan out, mark read, summarize.
func Test_Send_And_Read_Flow(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	topicSink := newRecordingSink()
	privateSink := newRecordingSink()
	ts.hub.Subscribe("conversation.conv_3_7", topicSink)
	ts.hub.SubscribeUser("7", privateSink)

	// User 3 sends "Hello" to user 7.
	response, env := ts.do(t, "3", http.MethodPost, "/messages", map[string]any{
		"receiverId": "7",
		"type":       "TEXT",
		"content":    "Hello",
	})
	req.Equal(http.StatusCreated, response.StatusCode)
	req.True(env.Success)

	var message domain.Message
	remarshal(t, env.Data, &message)
	req.Equal(domain.ConversationID("conv_3_7"), message.ConversationID)
	req.Equal(domain.StatusSent, message.Status)

	// The broker pushed to the topic and to user 7's private channel.
	req.IsType(event.MessageSent{}, <-topicSink.events)
	req.IsType(event.MessageSent{}, <-privateSink.events)

	// User 7 marks it read.
	response, env = ts.do(t, "7", http.MethodPost, fmt.Sprintf("/messages/%d/read", message.ID), nil)
	req.Equal(http.StatusOK, response.StatusCode)
	remarshal(t, env.Data, &message)
	req.Equal(domain.StatusRead, message.Status)
	req.NotNil(message.ReadAt)

	// User 3's conversation list shows the message with no unread left.
	_, env = ts.do(t, "3", http.MethodGet, "/conversations", nil)
	var summaries []domain.ConversationSummary
	remarshal(t, env.Data, &summaries)
	req.Len(summaries, 1)
	req.Equal("Hello", summaries[0].LastMessage)
	req.Equal(0, summaries[0].UnreadCount)
	req.Equal("Binta", summaries[0].Peer.DisplayName)
}

func Test_Edit_By_Non_Sender_Is_Forbidden(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	_, env := ts.do(t, "3", http.MethodPost, "/messages", map[string]any{
		"receiverId": "7", "type": "TEXT", "content": "Hello",
	})
	var message domain.Message
	remarshal(t, env.Data, &message)

	response, env := ts.do(t, "7", http.MethodPatch, fmt.Sprintf("/messages/%d", message.ID), map[string]any{
		"content": "tampered",
	})
	req.Equal(http.StatusForbidden, response.StatusCode)
	req.False(env.Success)
	req.NotEmpty(env.Error)

	// Content unchanged.
	_, env = ts.do(t, "3", http.MethodGet, "/conversations/conv_3_7/messages", nil)
	var page struct {
		Messages []domain.Message `json:"messages"`
	}
	remarshal(t, env.Data, &page)
	req.Len(page.Messages, 1)
	req.Equal("Hello", page.Messages[0].Content)
}

func Test_Send_Rejects_Malformed_Type(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	response, env := ts.do(t, "3", http.MethodPost, "/messages", map[string]any{
		"receiverId": "7", "type": "CARRIER_PIGEON", "content": "coo",
	})
	req.Equal(http.StatusBadRequest, response.StatusCode)
	req.False(env.Success)
}

func Test_Unauthorized_Without_Token(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	response, err := http.Get(ts.server.URL + "/conversations")
	req.NoError(err)
	defer response.Body.Close()
	req.Equal(http.StatusUnauthorized, response.StatusCode)
}

func Test_Unread_Endpoint(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	for _, content := range []string{"one", "two"} {
		_, env := ts.do(t, "3", http.MethodPost, "/messages", map[string]any{
			"receiverId": "7", "type": "TEXT", "content": content,
		})
		req.True(env.Success)
	}

	_, env := ts.do(t, "7", http.MethodGet, "/messages/unread", nil)
	var unread []domain.Message
	remarshal(t, env.Data, &unread)
	req.Len(unread, 2)

	_, env = ts.do(t, "3", http.MethodGet, "/messages/unread", nil)
	unread = nil
	remarshal(t, env.Data, &unread)
	req.Empty(unread)
}

func Test_Contacts(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	_, env := ts.do(t, "3", http.MethodGet, "/contacts", nil)
	var contacts []domain.Profile
	remarshal(t, env.Data, &contacts)
	req.Len(contacts, 1)
	req.Equal("7", contacts[0].ID)
}

// remarshal converts the loosely-decoded envelope data into its typed form.
func remarshal(t *testing.T, data any, dst any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}
