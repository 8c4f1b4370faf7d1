package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rdelolmomor/CalioBackend/internal/middleware"
	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/repository"
)

// MessagesHandler serves room history reads. Both endpoints apply the
// caller's role visibility inside the query, so a response never contains a
// message the caller could not have received live.
type MessagesHandler struct {
	messages repository.MessageRepository
}

func NewMessagesHandler(messages repository.MessageRepository) *MessagesHandler {
	return &MessagesHandler{messages: messages}
}

// historyQuery assembles the scoped query from the authenticated session and
// the roomId query parameter.
func historyQuery(c *gin.Context) (repository.HistoryQuery, bool) {
	session := c.MustGet(middleware.ContextSession).(*models.Session)
	roomID, err := strconv.ParseUint(c.Query("roomId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "roomId is required"})
		return repository.HistoryQuery{}, false
	}
	membership := session.Membership(uint(roomID))
	if membership == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "no access to the room"})
		return repository.HistoryQuery{}, false
	}
	return repository.HistoryQuery{
		Login:      session.Login,
		RoomID:     uint(roomID),
		PlatformID: session.PlatformID,
		Role:       membership.Role,
		RoomType:   membership.Type,
	}, true
}

// GetAvailable returns the room history window: everything for common rooms,
// the current day for the rest.
func (h *MessagesHandler) GetAvailable(c *gin.Context) {
	q, ok := historyQuery(c)
	if !ok {
		return
	}
	messages, err := h.messages.Available(q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// GetFiltered returns the last three days of messages whose body matches the
// search term.
func (h *MessagesHandler) GetFiltered(c *gin.Context) {
	q, ok := historyQuery(c)
	if !ok {
		return
	}
	q.Filter = c.Query("search")
	if q.Filter == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "search is required"})
		return
	}
	messages, err := h.messages.Filtered(q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, messages)
}
