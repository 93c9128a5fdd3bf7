package handler

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/middleware"
	"marketplace/internal/service/auth"
	"marketplace/pkg/utils"
)

// AuthHandler authentication handler
type AuthHandler struct {
	authService auth.AuthService
}

// NewAuthHandler creates an authentication handler
func NewAuthHandler(authService auth.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// RefreshRequest refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a refresh token for a new token pair
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, tokens)
}

// Logout revokes the presented access token
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := middleware.BearerToken(c)
	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, nil)
}

// Me returns the authenticated actor
func (h *AuthHandler) Me(c *gin.Context) {
	utils.SuccessResponse(c, actor(c))
}
