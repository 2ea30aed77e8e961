package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/mihastele/social-space-harry/internal/store"
	"github.com/mihastele/social-space-harry/pkg/log"
	"github.com/mihastele/social-space-harry/pkg/middleware"
	"github.com/mihastele/social-space-harry/pkg/response"
)

// PresenceChecker answers whether a user has a live connection.
type PresenceChecker interface {
	Online(userID string) bool
}

// PresenceLookup answers presence from a shared projection such as the
// Redis mirror, covering connections held by other relay processes.
type PresenceLookup interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type HTTPHandler struct {
	messages store.MessageStore
	keys     store.KeyStore
	presence PresenceChecker
	fallback PresenceLookup
	auth     *middleware.AuthMiddleware
	sf       singleflight.Group
}

func NewHTTPHandler(messages store.MessageStore, keys store.KeyStore, presence PresenceChecker, auth *middleware.AuthMiddleware) *HTTPHandler {
	return &HTTPHandler{
		messages: messages,
		keys:     keys,
		presence: presence,
		auth:     auth,
	}
}

// WithPresenceFallback makes GetPresence consult lookup for users with no
// local connection.
func (h *HTTPHandler) WithPresenceFallback(lookup PresenceLookup) *HTTPHandler {
	h.fallback = lookup
	return h
}

type publicKeyRequest struct {
	PublicKey string `json:"public_key" binding:"required"`
}

type publicKeyResponse struct {
	PublicKey string `json:"public_key"`
}

type presenceResponse struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/chat", h.auth.RequireAuth())
	{
		api.GET("/conversations", h.GetConversations)
		api.GET("/messages/:user_id", h.GetMessages)
		api.GET("/keys/:user_id", h.GetPublicKey)
		api.POST("/keys", h.UploadPublicKey)
		api.GET("/presence/:user_id", h.GetPresence)
	}

	r.GET("/health", h.HealthCheck)
}

func (h *HTTPHandler) GetConversations(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ctx := c.Request.Context()

	convs, err := h.messages.Conversations(ctx, userID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to load conversations")
		response.InternalError(c, "failed to load conversations")
		return
	}

	response.Success(c, convs)
}

// GetMessages returns the thread with :user_id and marks the partner's
// messages to the caller as read.
func (h *HTTPHandler) GetMessages(c *gin.Context) {
	userID := middleware.GetUserID(c)
	partnerID := c.Param("user_id")
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	if _, err := h.messages.MarkRead(ctx, partnerID, userID); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to mark messages read")
		response.InternalError(c, "failed to load messages")
		return
	}

	msgs, err := h.messages.History(ctx, userID, partnerID, store.DefaultHistoryLimit)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to load messages")
		response.InternalError(c, "failed to load messages")
		return
	}

	response.Success(c, msgs)
}

func (h *HTTPHandler) GetPublicKey(c *gin.Context) {
	userID := c.Param("user_id")
	ctx := c.Request.Context()

	// Clients fetch a partner's key on every conversation open. The lookup is
	// shared, so one caller going away must not fail the others.
	lookupCtx := context.WithoutCancel(ctx)
	result, err, _ := h.sf.Do(userID, func() (interface{}, error) {
		return h.keys.GetPublicKey(lookupCtx, userID)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "public key not found")
			return
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to load public key")
		response.InternalError(c, "failed to load public key")
		return
	}

	key, ok := result.(*store.PublicKey)
	if !ok {
		response.InternalError(c, "failed to load public key")
		return
	}

	response.Success(c, publicKeyResponse{PublicKey: key.PublicKey})
}

func (h *HTTPHandler) UploadPublicKey(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ctx := c.Request.Context()

	var req publicKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PublicKey) == "" {
		response.BadRequest(c, "public_key is required")
		return
	}

	if err := h.keys.UpsertPublicKey(ctx, userID, req.PublicKey); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to store public key")
		response.InternalError(c, "failed to store public key")
		return
	}
	h.sf.Forget(userID)

	response.Success(c, publicKeyResponse{PublicKey: req.PublicKey})
}

func (h *HTTPHandler) GetPresence(c *gin.Context) {
	userID := c.Param("user_id")

	online := h.presence.Online(userID)
	if !online && h.fallback != nil {
		ctx := c.Request.Context()
		remote, err := h.fallback.IsOnline(ctx, userID)
		if err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("presence lookup failed, using local registry")
		}
		online = remote
	}

	response.Success(c, presenceResponse{
		UserID: userID,
		Online: online,
	})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
