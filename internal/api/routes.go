package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rdelolmomor/CalioBackend/internal/api/handlers"
	"github.com/rdelolmomor/CalioBackend/internal/middleware"
	"github.com/rdelolmomor/CalioBackend/internal/repository"
	"github.com/rdelolmomor/CalioBackend/internal/service"
)

func SetupRoutes(r *gin.Engine, services *service.Services, repos *repository.Repositories) {
	authHandler := handlers.NewAuthHandler(services.Registry)
	messagesHandler := handlers.NewMessagesHandler(repos.Message)
	usersHandler := handlers.NewUsersHandler(repos.User)
	wsHandler := handlers.NewWebSocketHandler(services)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	// Public endpoints.
	r.POST("/auth/login", authHandler.Login)
	r.GET("/ws", wsHandler.HandleWebSocket)
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Everything else requires a live session.
	authorized := r.Group("/")
	authorized.Use(middleware.SessionMiddleware(services.Registry))
	{
		authorized.POST("/auth/logout", authHandler.Logout)
		authorized.POST("/auth/updateAvatar", authHandler.UpdateAvatar)

		authorized.GET("/messages/getAvailable", messagesHandler.GetAvailable)
		authorized.GET("/messages/getFiltered", messagesHandler.GetFiltered)

		authorized.GET("/users/getConnected", usersHandler.GetConnected)
	}
}
