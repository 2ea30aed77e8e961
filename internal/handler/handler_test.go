package handler

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mihastele/social-space-harry/internal/auth"
	"github.com/mihastele/social-space-harry/internal/config"
	"github.com/mihastele/social-space-harry/internal/domain"
	"github.com/mihastele/social-space-harry/internal/hub"
	"github.com/mihastele/social-space-harry/internal/service"
	"github.com/mihastele/social-space-harry/internal/store"
	"github.com/mihastele/social-space-harry/pkg/database"
	"github.com/mihastele/social-space-harry/pkg/jwt"
	"github.com/mihastele/social-space-harry/pkg/log"
	"github.com/mihastele/social-space-harry/pkg/middleware"
)

type testEnv struct {
	router *gin.Engine
	hub    *hub.Hub
	store  *store.GormStore
	tokens *jwt.Manager
	wsURL  string
	logs   *syncBuffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.AutoMigrate(db, store.Models()...))
	st := store.NewGormStore(db)

	tokens, err := jwt.NewManager("test-secret", time.Hour)
	require.NoError(t, err)
	verifier := auth.NewJWTVerifier(tokens)

	h := hub.NewHub(nil)
	svc := service.NewRelayService(verifier, st, h)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logs := &syncBuffer{}
	router := gin.New()
	router.Use(log.GinMiddleware(log.NewWithWriter(log.Config{Level: "debug"}, logs)))
	NewWSHandler(ctx, svc, config.WebSocketConfig{
		PingInterval: time.Hour,
		PongWait:     2 * time.Hour,
		WriteWait:    time.Second,
		SendBuffer:   16,
	}).RegisterRoutes(router)
	NewHTTPHandler(st, st, h, middleware.NewAuthMiddleware(verifier)).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{
		router: router,
		hub:    h,
		store:  st,
		tokens: tokens,
		wsURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat",
		logs:   logs,
	}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.tokens.GenerateToken(userID)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// login dials and authenticates as userID, consuming the connected frame.
func (e *testEnv) login(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn := e.dial(t)
	send(t, conn, &domain.AuthMessage{Token: e.token(t, userID)})
	require.Equal(t, &domain.ConnectedMessage{UserID: userID}, readFrame(t, conn))
	return conn
}

func send(t *testing.T, conn *websocket.Conn, f domain.Frame) {
	t.Helper()
	data, err := domain.EncodeFrame(f)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func readFrame(t *testing.T, conn *websocket.Conn) domain.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	f, ok := domain.DecodeFrame(data)
	require.True(t, ok, "undecodable frame %s", data)
	return f
}

// expectQuiet asserts that nothing reached conn since the last frame read.
// It re-authenticates as userID, which is answered with a fresh connected
// frame; replies are written in order, so anything else queued for conn
// would arrive first. Read deadlines are avoided because gorilla treats a
// timed-out read as fatal for the connection.
func (e *testEnv) expectQuiet(t *testing.T, conn *websocket.Conn, userID string) {
	t.Helper()
	send(t, conn, &domain.AuthMessage{Token: e.token(t, userID)})
	require.Equal(t, &domain.ConnectedMessage{UserID: userID}, readFrame(t, conn))
}

// syncBuffer collects log output written from many goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}
