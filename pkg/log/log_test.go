package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		" WARN ":   zerolog.WarnLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"off":      zerolog.Disabled,
		"":         zerolog.InfoLevel,
		"nonsense": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(Config{Level: "info", ServiceName: "chat-relay"}, &buf)

	l.Debug().Msg("hidden")
	l.Info().Msg("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
	assert.Equal(t, "chat-relay", lines[0][FieldService])
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewWithWriter(Config{Level: "debug"}, &buf))
	ctx = WithFields(ctx, FieldClientID, "c1", FieldUserID, "alice", "dangling")

	l := Ctx(ctx)
	l.Info().Msg("hello")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "c1", lines[0][FieldClientID])
	assert.Equal(t, "alice", lines[0][FieldUserID])
	assert.NotContains(t, lines[0], "dangling")
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "debug"}, &buf)

	r := gin.New()
	r.Use(GinMiddleware(logger))
	r.GET("/ping", func(c *gin.Context) {
		c.Set(FieldUserID, "alice")
		l := Ctx(c.Request.Context())
		l.Debug().Msg("inside")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "req-1", lines[0][FieldRequestID])
	assert.Equal(t, "request completed", lines[1]["message"])
	assert.Equal(t, "alice", lines[1][FieldUserID])
	assert.Equal(t, float64(http.StatusNoContent), lines[1][FieldStatus])
}

func TestGinMiddleware_LevelFollowsStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer

	r := gin.New()
	r.Use(GinMiddleware(NewWithWriter(Config{Level: "debug"}, &buf)))
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/boom", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "warn", lines[1]["level"])
	assert.NotEmpty(t, lines[0][FieldRequestID])
}
