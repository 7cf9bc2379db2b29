package handler

import (
	"bytes"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hbai-chat-go/internal/chat"
	"hbai-chat-go/internal/generator"
	"hbai-chat-go/internal/middleware"
	"hbai-chat-go/internal/model"
	"hbai-chat-go/internal/repository"
	"hbai-chat-go/internal/service"
	"hbai-chat-go/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	jwt    *token.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gen := generator.NewMockModelManager(model.ModelConfig{Device: model.DeviceCPU, MaxContextTurns: 10}, 0, rand.New(rand.NewPCG(1, 2)))
	repo := repository.NewMemorySessionRepository(time.Hour, time.Minute)
	locks := service.NewSessionLocks()
	jwtManager := token.NewJWTManager("test-secret", 1)

	r := gin.New()
	r.Use(middleware.RequestLogger())
	RegisterRoutes(r, Services{
		Sessions: service.NewSessionService(repo, chat.New(gen), locks, time.Minute),
		Chat:     service.NewChatService(repo, gen, nil, locks, time.Second),
		Export:   service.NewExportService(repo, nil),
		Archive:  service.NewArchiveService(nil),
	}, jwtManager, middleware.NewVisitorLimiter(0, 1))
	return &testServer{router: r, jwt: jwtManager}
}

func (s *testServer) visitorToken(t *testing.T, visitorID string) string {
	t.Helper()
	signed, _, err := s.jwt.IssueVisitorToken(visitorID, "ko")
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, path, tok string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestVisitorToken(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/auth/visitor", "", map[string]string{"language": "EN"})
	require.Equal(t, http.StatusOK, code)
	var first struct {
		Token     string `json:"token"`
		VisitorID string `json:"visitorId"`
		Language  string `json:"language"`
	}
	decode(t, env.Data, &first)
	assert.NotEmpty(t, first.Token)
	assert.NotEmpty(t, first.VisitorID)
	assert.Equal(t, "en", first.Language)

	// 携带有效 token 续签时保留访客 ID
	code, env = s.do(t, http.MethodPost, "/api/v1/auth/visitor", "", map[string]string{"token": first.Token})
	require.Equal(t, http.StatusOK, code)
	var renewed struct {
		VisitorID string `json:"visitorId"`
		Language  string `json:"language"`
	}
	decode(t, env.Data, &renewed)
	assert.Equal(t, first.VisitorID, renewed.VisitorID)
	assert.Equal(t, "ko", renewed.Language)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	tok := s.visitorToken(t, "visitor-1")

	code, env := s.do(t, http.MethodPost, "/api/v1/sessions", tok, nil)
	require.Equal(t, http.StatusCreated, code)
	var session model.Session
	decode(t, env.Data, &session)
	assert.Equal(t, model.StateIdle, session.State)
	assert.Equal(t, model.DefaultSessionTitle, session.Title)

	code, env = s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/messages", tok, SubmitRequest{Text: "안녕하세요"})
	require.Equal(t, http.StatusOK, code)
	var res service.SubmitResult
	decode(t, env.Data, &res)
	assert.False(t, res.Failed)
	assert.Equal(t, "ko", res.Language)
	assert.Equal(t, model.StateIdle, res.Session.State)
	require.Len(t, res.Appended, 2)
	assert.Equal(t, model.RoleUser, res.Appended[0].Role)
	assert.Equal(t, model.RoleAssistant, res.Appended[1].Role)
	assert.NotEmpty(t, res.Appended[1].Text)
	assert.Equal(t, "안녕하세요", res.Session.Title)

	code, env = s.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID, tok, nil)
	require.Equal(t, http.StatusOK, code)
	var detail model.SessionDetail
	decode(t, env.Data, &detail)
	assert.Len(t, detail.Messages, 2)

	code, env = s.do(t, http.MethodGet, "/api/v1/sessions", tok, nil)
	require.Equal(t, http.StatusOK, code)
	var list []model.Session
	decode(t, env.Data, &list)
	require.Len(t, list, 1)
	assert.Equal(t, session.ID, list[0].ID)

	code, env = s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/reset", tok, nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, env.Data, &session)
	assert.Equal(t, model.DefaultSessionTitle, session.Title)

	code, _ = s.do(t, http.MethodDelete, "/api/v1/sessions/"+session.ID, tok, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID, tok, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSubmit_Errors(t *testing.T) {
	s := newTestServer(t)
	owner := s.visitorToken(t, "owner")
	other := s.visitorToken(t, "other")

	code, env := s.do(t, http.MethodPost, "/api/v1/sessions", owner, map[string]interface{}{"language": "en"})
	require.Equal(t, http.StatusCreated, code)
	var session model.Session
	decode(t, env.Data, &session)
	assert.Equal(t, "en", session.Language)

	code, env = s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/messages", owner, SubmitRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, http.StatusBadRequest, env.Code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/messages", other, SubmitRequest{Text: "Hello"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/messages", "", SubmitRequest{Text: "Hello"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestDisabledFeatures(t *testing.T) {
	s := newTestServer(t)
	tok := s.visitorToken(t, "visitor-1")

	_, env := s.do(t, http.MethodPost, "/api/v1/sessions", tok, nil)
	var session model.Session
	decode(t, env.Data, &session)

	code, _ := s.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/export", tok, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/archive?page=1&size=10", tok, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestSystemEndpoints(t *testing.T) {
	s := newTestServer(t)
	tok := s.visitorToken(t, "visitor-1")

	code, env := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	var health struct {
		Status  string `json:"status"`
		Backend string `json:"backend"`
	}
	decode(t, env.Data, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, string(generator.KindMock), health.Backend)

	code, _ = s.do(t, http.MethodGet, "/api/v1/i18n/en", "", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/api/v1/i18n/fr", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(t, http.MethodGet, "/api/v1/model", tok, nil)
	require.Equal(t, http.StatusOK, code)
	var info generator.BackendInfo
	decode(t, env.Data, &info)
	assert.Equal(t, generator.KindMock, info.Kind)
	assert.True(t, info.Loaded)

	code, env = s.do(t, http.MethodPost, "/api/v1/generate", tok, GenerateRequest{Prompt: "Hello"})
	require.Equal(t, http.StatusOK, code)
	var gen struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	decode(t, env.Data, &gen)
	assert.NotEmpty(t, gen.Text)
	assert.Equal(t, "en", gen.Language)

	code, _ = s.do(t, http.MethodPost, "/api/v1/generate", tok, GenerateRequest{Prompt: ""})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestChatWebSocket(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	tok := s.visitorToken(t, "visitor-ws")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent := func() map[string]interface{} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var event map[string]interface{}
		require.NoError(t, conn.ReadJSON(&event))
		return event
	}

	require.NoError(t, conn.WriteJSON(wsRequest{Text: "Hello"}))

	state := readEvent()
	assert.Equal(t, "state", state["type"])
	assert.Equal(t, string(model.StateAwaitingResponse), state["state"])
	sessionID, _ := state["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	turn := readEvent()
	assert.Equal(t, "turn", turn["type"])
	assert.Equal(t, sessionID, turn["sessionId"])

	done := readEvent()
	assert.Equal(t, "completion", done["type"])
	session, _ := done["session"].(map[string]interface{})
	require.NotNil(t, session)
	assert.Equal(t, string(model.StateIdle), session["state"])

	// 空消息返回 error 事件，连接保持可用
	require.NoError(t, conn.WriteJSON(wsRequest{SessionID: sessionID, Text: ""}))
	errEvent := readEvent()
	assert.Equal(t, "error", errEvent["type"])
	assert.Equal(t, float64(http.StatusBadRequest), errEvent["code"])
	assert.Equal(t, "completion", readEvent()["type"])
}

func TestChatWebSocket_RejectsInvalidToken(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/not-a-token"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
