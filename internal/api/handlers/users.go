package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rdelolmomor/CalioBackend/internal/middleware"
	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/repository"
)

// UsersHandler serves the online-user listing.
type UsersHandler struct {
	users repository.UserRepository
}

func NewUsersHandler(users repository.UserRepository) *UsersHandler {
	return &UsersHandler{users: users}
}

// GetConnected lists the users currently connected to a room, filtered by
// the caller's online visibility and platform.
func (h *UsersHandler) GetConnected(c *gin.Context) {
	session := c.MustGet(middleware.ContextSession).(*models.Session)
	roomID, err := strconv.ParseUint(c.Query("roomId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "roomId is required"})
		return
	}
	membership := session.Membership(uint(roomID))
	if membership == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "no access to the room"})
		return
	}

	connected, err := h.users.ConnectedUsers(session.Login, uint(roomID), session.PlatformID, membership.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "connected users lookup failed"})
		return
	}
	c.JSON(http.StatusOK, connected)
}
