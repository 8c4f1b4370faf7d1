package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rdelolmomor/CalioBackend/internal/middleware"
	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/repository"
	"github.com/rdelolmomor/CalioBackend/internal/service"
)

// AuthHandler serves login, logout and profile updates.
type AuthHandler struct {
	registry *service.Registry
}

func NewAuthHandler(registry *service.Registry) *AuthHandler {
	return &AuthHandler{registry: registry}
}

type LoginInput struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AvatarInput struct {
	Avatar string `json:"avatar" binding:"required"`
}

// Login authenticates credentials and returns the composed session with its
// fresh token and full room profile.
func (h *AuthHandler) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "login and password are required"})
		return
	}

	session, err := h.registry.Login(input.Login, input.Password)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCredential) || errors.Is(err, repository.ErrAccessDenied) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// Logout closes the caller's session; the token stops working immediately.
func (h *AuthHandler) Logout(c *gin.Context) {
	session := c.MustGet(middleware.ContextSession).(*models.Session)
	token := c.MustGet(middleware.ContextToken).(string)

	closed, err := h.registry.CloseSession(session.Login, token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	if !closed {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session closed"})
}

// UpdateAvatar persists the caller's avatar and returns the stored value.
func (h *AuthHandler) UpdateAvatar(c *gin.Context) {
	var input AvatarInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "avatar is required"})
		return
	}
	session := c.MustGet(middleware.ContextSession).(*models.Session)
	token := c.MustGet(middleware.ContextToken).(string)

	avatar, err := h.registry.UpdateAvatar(session.Login, token, input.Avatar)
	if err != nil {
		if errors.Is(err, service.ErrSessionInvalid) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "avatar update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatar": avatar})
}
