package log

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

// GinMiddleware stamps every request with a request ID (taken from
// X-Request-ID when present), stores a child logger carrying it in the
// request context and echoes the ID back in the response header.
//
// Plain requests get a completion line whose level follows the status code.
// WebSocket upgrades get a single "websocket upgraded" line instead, written
// when the upgrade handler returns; the connection itself logs its own close.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}

		child := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, c.Request.URL.Path).
			Str(FieldClientIP, c.ClientIP()).
			Logger()

		upgrade := c.IsWebsocket()
		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), child))

		c.Next()

		status := c.Writer.Status()
		if upgrade && status == http.StatusSwitchingProtocols {
			child.Info().Msg("websocket upgraded")
			return
		}

		var evt *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			evt = child.Error()
		case status >= http.StatusBadRequest:
			evt = child.Warn()
		default:
			evt = child.Info()
		}
		evt = evt.Int(FieldStatus, status).
			Float64(FieldLatency, float64(time.Since(start).Microseconds())/1000)

		if userID := c.GetString(FieldUserID); userID != "" {
			evt = evt.Str(FieldUserID, userID)
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}

		evt.Msg("request completed")
	}
}
