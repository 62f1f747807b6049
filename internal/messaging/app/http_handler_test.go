package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/X9Cipher/alumni-portal-sub001/internal/messaging/domain"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/middlewares"
	"github.com/X9Cipher/alumni-portal-sub001/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newHTTPTestApp(t *testing.T) (*fiber.App, *useCaseDeps, string) {
	t.Helper()
	token.SetSecret("http-test-secret")
	uc, d := newTestUseCase(Options{})
	h := NewMessageHandler(uc, "alumni-portal", time.Minute)

	r := fiber.New()
	r.Get("/", ConnectCheck)
	r.Post("/debug", DebugLogFlag)
	messages := r.Group("/api/messages", middlewares.JWTMiddleware())
	messages.Get("/token", h.SocketToken)
	messages.Get("/conversations", h.Conversations)
	messages.Get("/:otherUserId", h.Messages)
	messages.Put("/:otherUserId/read", h.MarkConversationRead)

	session, err := token.GenerateJWT("u1", "student", "alumni-portal", time.Hour)
	require.NoError(t, err)
	return r, d, session
}

func doRequest(t *testing.T, r *fiber.App, method, path, session string) (int, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if session != "" {
		req.AddCookie(&http.Cookie{Name: middlewares.CookieToken, Value: session})
	}
	resp, err := r.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]json.RawMessage{}
	_ = json.Unmarshal(body, &out)
	return resp.StatusCode, out
}

func TestMessageHandler_SocketToken(t *testing.T) {
	r, _, session := newHTTPTestApp(t)

	status, body := doRequest(t, r, http.MethodGet, "/api/messages/token", session)
	require.Equal(t, http.StatusOK, status)

	var tok string
	require.NoError(t, json.Unmarshal(body["token"], &tok))
	claims, err := token.ParseJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "student", claims.UserType)

	status, _ = doRequest(t, r, http.MethodGet, "/api/messages/token", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMessageHandler_Conversations(t *testing.T) {
	r, d, session := newHTTPTestApp(t)
	d.convs.On("ListForUser", mock.Anything, "u1", 2, 10).Return([]domain.Conversation{{ID: "conv1", Participants: []string{"u1", "u2"}}}, nil)

	status, body := doRequest(t, r, http.MethodGet, "/api/messages/conversations?page=2&page_size=10", session)
	require.Equal(t, http.StatusOK, status)
	var convs []domain.Conversation
	require.NoError(t, json.Unmarshal(body["conversations"], &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "conv1", convs[0].ID)
}

func TestMessageHandler_Messages(t *testing.T) {
	r, d, session := newHTTPTestApp(t)
	d.msgs.On("ListThread", mock.Anything, "u1", "u2", 1, 0).Return([]domain.Message{{ID: "m1", Content: "hi"}}, nil)
	d.msgs.On("ListThread", mock.Anything, "u1", "broken", 1, 0).Return(nil, errors.New("mongo down"))

	status, body := doRequest(t, r, http.MethodGet, "/api/messages/u2", session)
	require.Equal(t, http.StatusOK, status)
	var msgs []domain.Message
	require.NoError(t, json.Unmarshal(body["messages"], &msgs))
	assert.Equal(t, "hi", msgs[0].Content)

	status, _ = doRequest(t, r, http.MethodGet, "/api/messages/broken", session)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestMessageHandler_MarkConversationRead(t *testing.T) {
	r, d, session := newHTTPTestApp(t)
	d.convs.On("MarkConversationRead", mock.Anything, "u1", "u2").Return(nil)

	status, body := doRequest(t, r, http.MethodPut, "/api/messages/u2/read", session)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "true", string(body["success"]))
	d.convs.AssertExpectations(t)
}

func TestDebugLogFlag(t *testing.T) {
	r, _, _ := newHTTPTestApp(t)

	resp, err := r.Test(httptest.NewRequest(http.MethodPost, "/debug?status=true", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = r.Test(httptest.NewRequest(http.MethodPost, "/debug?status=maybe", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
