package push

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"streamchat-backend/internal/middleware"
	"streamchat-backend/internal/service/notification"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/push"
	"streamchat-backend/pkg/response"
)

// TokenService manages device tokens for push delivery
type TokenService interface {
	RegisterToken(ctx context.Context, input *notification.RegisterTokenInput) error
	UnregisterToken(ctx context.Context, userID uuid.UUID, token string) error
}

// Handler handles push notification HTTP requests
type Handler struct {
	tokenService TokenService
}

// NewHandler creates a new push notification handler
func NewHandler(tokenService TokenService) *Handler {
	return &Handler{
		tokenService: tokenService,
	}
}

// RegisterTokenRequest represents request to register a push token
type RegisterTokenRequest struct {
	Token    string         `json:"token" binding:"required"`
	Type     push.TokenType `json:"type" binding:"required,oneof=fcm apns"`
	Platform string         `json:"platform"` // ios, android
}

// RegisterToken registers a push notification token for the authenticated user
// @Summary Register push notification token
// @Tags Push
// @Accept json
// @Produce json
// @Param request body RegisterTokenRequest true "Token registration data"
// @Router /v1/push/tokens [post]
func (h *Handler) RegisterToken(c *gin.Context) {
	requester := middleware.GetRequester(c)
	if !requester.Authenticated() {
		response.Unauthorized(c, "Authentication required")
		return
	}

	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if req.Platform != "" && req.Platform != "ios" && req.Platform != "android" {
		response.ValidationError(c, "Invalid platform. Must be 'ios' or 'android'")
		return
	}

	err := h.tokenService.RegisterToken(c.Request.Context(), &notification.RegisterTokenInput{
		UserID:   requester.ID,
		Token:    req.Token,
		Type:     req.Type,
		Platform: req.Platform,
	})
	if err != nil {
		_ = c.Error(err)
		response.FromError(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("Push token registered",
		zap.String("user_id", requester.ID.String()),
		zap.String("token_type", string(req.Type)),
		zap.String("platform", req.Platform))

	response.Success(c, http.StatusOK, gin.H{
		"message": "Token registered successfully",
	})
}

// UnregisterTokenRequest represents request to unregister a push token
type UnregisterTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UnregisterToken removes a push notification token owned by the caller
// @Summary Unregister push notification token
// @Tags Push
// @Accept json
// @Produce json
// @Param request body UnregisterTokenRequest true "Token unregistration data"
// @Router /v1/push/tokens [delete]
func (h *Handler) UnregisterToken(c *gin.Context) {
	requester := middleware.GetRequester(c)
	if !requester.Authenticated() {
		response.Unauthorized(c, "Authentication required")
		return
	}

	var req UnregisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.tokenService.UnregisterToken(c.Request.Context(), requester.ID, req.Token); err != nil {
		_ = c.Error(err)
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Token unregistered successfully",
	})
}
