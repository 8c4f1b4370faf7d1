package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rdelolmomor/CalioBackend/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement belongs to the reverse proxy in front of us.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades authenticated connections and hands them to the
// hub and dispatcher.
type WebSocketHandler struct {
	registry   *service.Registry
	hub        *service.Hub
	dispatcher *service.Dispatcher
}

func NewWebSocketHandler(services *service.Services) *WebSocketHandler {
	return &WebSocketHandler{
		registry:   services.Registry,
		hub:        services.Hub,
		dispatcher: services.Dispatcher,
	}
}

// HandleWebSocket authenticates the login/token query pair, binds a fresh
// socket id to the session and starts both pumps. Browsers cannot set
// headers on websocket requests, so credentials travel as query parameters.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	login := c.Query("login")
	token := c.Query("token")
	if login == "" || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
		return
	}

	socketID := uuid.NewString()
	linked, err := h.registry.LinkSocket(login, token, socketID)
	if err != nil || !linked {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	session, err := h.registry.GetSession(login, token)
	if err != nil || session == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[ws] upgrading connection of %s: %v", login, err)
		h.registry.UnlinkSocket(login, token)
		return
	}

	client := service.NewClient(h.hub, conn, socketID, session, token)
	h.hub.Register(client)
	if err := h.dispatcher.OnConnect(session, socketID); err != nil {
		log.Printf("[ws] joining channels of %s: %v", login, err)
		h.hub.Unregister(client)
		conn.Close()
		h.registry.UnlinkSocket(login, token)
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
