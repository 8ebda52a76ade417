package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gnest/internal/app"
	"gnest/internal/config"
	"gnest/internal/pkg/token"

	"github.com/IBM/sarama"
	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*app.App, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Mode = "test"
	cfg.Kernel.DefaultTimeout = 5 * time.Second

	a, err := app.Setup(context.Background(), cfg)
	require.NoError(t, err)
	a.HTTP.Init()
	srv := httptest.NewServer(a.HTTP)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = a.HTTP.Shutdown(context.Background(), "test") })
	return a, srv
}

func call(t *testing.T, srv *httptest.Server, method, path, bearer string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out map[string]any
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestAuthFlow(t *testing.T) {
	_, srv := setup(t)
	creds := map[string]string{"userName": "alice", "password": "s3cret-pass"}

	code, body := call(t, srv, http.MethodPost, "/auth/register", "", creds)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "alice", body["data"].(map[string]any)["userName"])

	code, body = call(t, srv, http.MethodPost, "/auth/register", "", creds)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body["message"], "alice")

	code, body = call(t, srv, http.MethodPost, "/auth/register", "", map[string]string{"userName": "al"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = call(t, srv, http.MethodPost, "/auth/login", "", creds)
	require.Equal(t, http.StatusOK, code, body)
	tokens := body["data"].(map[string]any)
	access := tokens["accessToken"].(string)
	refresh := tokens["refreshToken"].(string)

	code, body = call(t, srv, http.MethodGet, "/me", access, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "alice", body["data"].(map[string]any)["userName"])

	code, _ = call(t, srv, http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = call(t, srv, http.MethodGet, "/me", refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = call(t, srv, http.MethodPost, "/auth/refresh-token", "", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, code, body)
	assert.NotEmpty(t, body["data"].(map[string]any)["accessToken"])
}

func TestIncidentsRequireAdmin(t *testing.T) {
	a, srv := setup(t)
	sign := func(role string) string {
		s, err := a.Issuer.Sign(token.Claims{
			StandardClaims: jwt.StandardClaims{Subject: "u-1"},
			Role:           role,
		}, time.Minute)
		require.NoError(t, err)
		return s
	}

	code, _ := call(t, srv, http.MethodGet, "/incidents", sign("user"), nil)
	assert.Equal(t, http.StatusForbidden, code)

	// 未启用 PostgreSQL
	code, body := call(t, srv, http.MethodGet, "/incidents", sign("admin"), nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.EqualValues(t, http.StatusServiceUnavailable, body["statusCode"])

	code, _ = call(t, srv, http.MethodGet, "/incidents/not-a-uuid", sign("admin"), nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRegisteredEventReachesWebSocket(t *testing.T) {
	_, srv := setup(t)
	conn := dial(t, srv)

	// ping 往返保证连接已登记
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)))
	pong := read(t, conn)
	assert.Equal(t, "ping", pong["event"])

	code, _ := call(t, srv, http.MethodPost, "/auth/register", "",
		map[string]string{"userName": "bob", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, code)

	frame := read(t, conn)
	assert.Equal(t, "user.registered", frame["event"])
	assert.Equal(t, "bob", frame["data"].(map[string]any)["userName"])
}

func TestKafkaRelay(t *testing.T) {
	a, srv := setup(t)
	assert.Contains(t, a.Subscriber.Topics(), app.UsersTopic)
	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)))
	read(t, conn)

	err := a.Subscriber.Process(context.Background(), &sarama.ConsumerMessage{
		Topic:   app.UsersTopic,
		Headers: []*sarama.RecordHeader{{Key: []byte("type"), Value: []byte("registered")}},
		Value:   []byte(`{"userName":"carol"}`),
	})
	require.NoError(t, err)
	frame := read(t, conn)
	assert.Equal(t, "users.registered", frame["event"])

	err = a.Subscriber.Process(context.Background(), &sarama.ConsumerMessage{
		Topic: app.UsersTopic,
		Value: []byte("not json"),
	})
	assert.Error(t, err)
}

func TestShutdownDestroysEverything(t *testing.T) {
	a, srv := setup(t)
	require.NoError(t, a.HTTP.Shutdown(context.Background(), "test"))

	for _, r := range a.HTTP.Routes() {
		assert.True(t, r.Handler.Destroyed(), r.Path)
	}
	h, ok := a.Subscriber.Handler(app.UsersTopic)
	if ok {
		assert.True(t, h.Destroyed())
	}
	code, _ := call(t, srv, http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
