package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carladovalle/bate-papo-uol-api/domain"
	"github.com/carladovalle/bate-papo-uol-api/internal"
	"github.com/carladovalle/bate-papo-uol-api/repositories"
	"github.com/carladovalle/bate-papo-uol-api/services"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })

	clock := internal.SystemClock{}
	registry := repositories.NewParticipantRegistry(clock)
	messages, err := repositories.NewMessageRepository(db, writer, slog.Default(), clock)
	req.NoError(err)
	t.Cleanup(func() { _ = messages.Close() })

	rooms := services.NewRoomService(slog.Default(), registry, messages, nil)
	return NewServer(slog.Default(), rooms, SenderOnlyPolicy, 50)
}

func doJSON(t *testing.T, server *Server, method, target, caller string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	request := httptest.NewRequest(method, target, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		request.Header.Set("User", caller)
	}

	resp, err := server.App().Test(request, -1)
	require.NoError(t, err)
	return resp
}

func decodeMessages(t *testing.T, resp *http.Response) []messageResponse {
	t.Helper()
	var messages []messageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&messages))
	return messages
}

func TestServer_JoinConflict(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	resp := doJSON(t, server, fiber.MethodPost, "/participants", "", map[string]string{"name": "Alice"})
	req.Equal(fiber.StatusCreated, resp.StatusCode)

	resp = doJSON(t, server, fiber.MethodPost, "/participants", "", map[string]string{"name": "Alice"})
	req.Equal(fiber.StatusConflict, resp.StatusCode)

	resp = doJSON(t, server, fiber.MethodPost, "/participants", "", map[string]string{})
	req.Equal(fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestServer_HeartbeatStatusCodes(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	doJSON(t, server, fiber.MethodPost, "/participants", "", map[string]string{"name": "Alice"})

	resp := doJSON(t, server, fiber.MethodPost, "/status", "Alice", nil)
	req.Equal(fiber.StatusOK, resp.StatusCode)

	resp = doJSON(t, server, fiber.MethodPost, "/status", "Ghost", nil)
	req.Equal(fiber.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, server, fiber.MethodPost, "/status", "", nil)
	req.Equal(fiber.StatusUnprocessableEntity, resp.StatusCode)
}

// The room scenario: two joins, one broadcast, one private message. Alice
// must see all four entries; Carol must not see the private one.
func TestServer_MessageFlow(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	doJSON(t, server, fiber.MethodPost, "/participants", "", map[string]string{"name": "Alice"})
	doJSON(t, server, fiber.MethodPost, "/participants", "", map[string]string{"name": "Bob"})

	resp := doJSON(t, server, fiber.MethodPost, "/messages", "Alice", map[string]string{
		"to": domain.Broadcast, "text": "hi", "type": "message",
	})
	req.Equal(fiber.StatusCreated, resp.StatusCode)

	resp = doJSON(t, server, fiber.MethodPost, "/messages", "Bob", map[string]string{
		"to": "Alice", "text": "hey", "type": "private_message",
	})
	req.Equal(fiber.StatusCreated, resp.StatusCode)

	resp = doJSON(t, server, fiber.MethodGet, "/messages", "Alice", nil)
	req.Equal(fiber.StatusOK, resp.StatusCode)
	messages := decodeMessages(t, resp)
	req.Len(messages, 4)
	req.Equal("status", messages[0].Type)
	req.Equal("Alice", messages[0].From)
	req.Equal("status", messages[1].Type)
	req.Equal("Bob", messages[1].From)
	req.Equal("hi", messages[2].Text)
	req.Equal("hey", messages[3].Text)

	// Carol never gets Bob's private message to Alice
	doJSON(t, server, fiber.MethodPost, "/participants", "", map[string]string{"name": "Carol"})
	resp = doJSON(t, server, fiber.MethodGet, "/messages", "Carol", nil)
	messages = decodeMessages(t, resp)
	for _, m := range messages {
		req.NotEqual("hey", m.Text)
	}
}

func TestServer_FetchLimit(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	doJSON(t, server, fiber.MethodPost, "/participants", "", map[string]string{"name": "Alice"})
	for i := 0; i < 5; i++ {
		doJSON(t, server, fiber.MethodPost, "/messages", "Alice", map[string]string{
			"to": domain.Broadcast, "text": fmt.Sprintf("msg-%d", i), "type": "message",
		})
	}

	// 1 status notice + 5 broadcasts in the log
	resp := doJSON(t, server, fiber.MethodGet, "/messages?limit=2", "Alice", nil)
	messages := decodeMessages(t, resp)
	req.Len(messages, 2)
	req.Equal("msg-3", messages[0].Text)
	req.Equal("msg-4", messages[1].Text)

	// Unparseable and non-positive limits mean no truncation
	resp = doJSON(t, server, fiber.MethodGet, "/messages?limit=abc", "Alice", nil)
	req.Len(decodeMessages(t, resp), 6)
	resp = doJSON(t, server, fiber.MethodGet, "/messages?limit=-1", "Alice", nil)
	req.Len(decodeMessages(t, resp), 6)
}

func TestServer_SendMessageValidation(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	doJSON(t, server, fiber.MethodPost, "/participants", "", map[string]string{"name": "Alice"})

	// A status kind cannot be sent by a client
	resp := doJSON(t, server, fiber.MethodPost, "/messages", "Alice", map[string]string{
		"to": domain.Broadcast, "text": "fake", "type": "status",
	})
	req.Equal(fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp = doJSON(t, server, fiber.MethodPost, "/messages", "Alice", map[string]string{
		"to": domain.Broadcast, "type": "message",
	})
	req.Equal(fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp = doJSON(t, server, fiber.MethodPost, "/messages", "", map[string]string{
		"to": domain.Broadcast, "text": "hi", "type": "message",
	})
	req.Equal(fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestServer_EditAndDeleteWithOwnership(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	doJSON(t, server, fiber.MethodPost, "/participants", "", map[string]string{"name": "Alice"})
	doJSON(t, server, fiber.MethodPost, "/participants", "", map[string]string{"name": "Bob"})

	resp := doJSON(t, server, fiber.MethodPost, "/messages", "Alice", map[string]string{
		"to": domain.Broadcast, "text": "typo", "type": "message",
	})
	var created messageResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&created))

	// Bob cannot edit Alice's message
	resp = doJSON(t, server, fiber.MethodPut, "/messages/"+created.ID, "Bob", map[string]string{
		"to": domain.Broadcast, "text": "hacked", "type": "message",
	})
	req.Equal(fiber.StatusUnauthorized, resp.StatusCode)

	// Alice can
	resp = doJSON(t, server, fiber.MethodPut, "/messages/"+created.ID, "Alice", map[string]string{
		"to": domain.Broadcast, "text": "fixed", "type": "message",
	})
	req.Equal(fiber.StatusOK, resp.StatusCode)
	var updated messageResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&updated))
	req.Equal("fixed", updated.Text)

	// Bob cannot delete it either
	resp = doJSON(t, server, fiber.MethodDelete, "/messages/"+created.ID, "Bob", nil)
	req.Equal(fiber.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, server, fiber.MethodDelete, "/messages/"+created.ID, "Alice", nil)
	req.Equal(fiber.StatusOK, resp.StatusCode)

	// Gone now
	resp = doJSON(t, server, fiber.MethodDelete, "/messages/"+created.ID, "Alice", nil)
	req.Equal(fiber.StatusNotFound, resp.StatusCode)
}

func TestServer_SearchMessages(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	doJSON(t, server, fiber.MethodPost, "/participants", "", map[string]string{"name": "Alice"})
	doJSON(t, server, fiber.MethodPost, "/messages", "Alice", map[string]string{
		"to": domain.Broadcast, "text": "churrasco no domingo", "type": "message",
	})
	doJSON(t, server, fiber.MethodPost, "/messages", "Alice", map[string]string{
		"to": domain.Broadcast, "text": "reuniao na segunda", "type": "message",
	})

	resp := doJSON(t, server, fiber.MethodGet, "/messages/search?q=churrasco", "Alice", nil)
	req.Equal(fiber.StatusOK, resp.StatusCode)
	messages := decodeMessages(t, resp)
	req.Len(messages, 1)
	req.Equal("churrasco no domingo", messages[0].Text)

	resp = doJSON(t, server, fiber.MethodGet, "/messages/search", "Alice", nil)
	req.Equal(fiber.StatusUnprocessableEntity, resp.StatusCode)
}
