package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mihastele/social-space-harry/internal/config"
	"github.com/mihastele/social-space-harry/internal/domain"
	"github.com/mihastele/social-space-harry/internal/hub"
	"github.com/mihastele/social-space-harry/internal/service"
	"github.com/mihastele/social-space-harry/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler accepts chat WebSocket connections and dispatches their frames
// to the relay service.
type WSHandler struct {
	ctx     context.Context
	service service.RelayService
	wsCfg   config.WebSocketConfig
}

// NewWSHandler creates a handler whose connections live until ctx is
// cancelled or their peer goes away.
func NewWSHandler(ctx context.Context, svc service.RelayService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		ctx:     ctx,
		service: svc,
		wsCfg:   wsCfg,
	}
}

func (h *WSHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws/chat", h.HandleWebSocket)
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := log.Ctx(c.Request.Context())

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), conn, h.wsCfg)
	l.Debug().Str(log.FieldClientID, client.ID).Msg("websocket connected")

	// The request context ends when this handler returns, so the connection
	// runs on the handler's context while keeping the request logger.
	go client.Run(log.WithLogger(h.ctx, l), h)
}

// HandleFrame implements hub.FrameHandler. Frames that fail to decode, and
// server-to-client frames sent by a client, are ignored.
func (h *WSHandler) HandleFrame(ctx context.Context, client *hub.Client, data []byte) {
	frame, ok := domain.DecodeFrame(data)
	if !ok {
		return
	}

	// The service and audit entries stamp user_id themselves.
	l := log.Ctx(ctx)

	var err error
	switch msg := frame.(type) {
	case *domain.AuthMessage:
		err = h.service.HandleAuth(ctx, client, msg.Token)
	case *domain.ChatSendMessage:
		err = h.service.HandleChatMessage(ctx, client, msg)
	case *domain.TypingMessage:
		err = h.service.HandleTyping(ctx, client, msg.ReceiverID)
	default:
		return
	}

	if err != nil {
		l.Debug().Err(err).
			Str(log.FieldUserID, client.Session().UserID()).
			Str(log.FieldFrameType, frame.FrameType()).
			Msg("frame rejected")
	}
}

// HandleDisconnect implements hub.FrameHandler.
func (h *WSHandler) HandleDisconnect(ctx context.Context, client *hub.Client) {
	if err := h.service.HandleDisconnect(ctx, client); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("disconnect cleanup failed")
	}
}
