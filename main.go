package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/rdelolmomor/CalioBackend/internal/api"
	"github.com/rdelolmomor/CalioBackend/internal/config"
	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/repository"
	"github.com/rdelolmomor/CalioBackend/internal/service"
	"github.com/rdelolmomor/CalioBackend/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := storage.NewPostgresDB(cfg.DB.Host, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.Port)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(
		&models.User{},
		&models.SessionRecord{},
		&models.Room{},
		&models.UserRoom{},
		&models.Message{},
		&models.MessageState{},
	); err != nil {
		log.Fatalf("Failed to auto migrate database: %v", err)
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, cfg)

	r := gin.Default()
	api.SetupRoutes(r, services, repos)

	if err := r.Run(cfg.Server.Address); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
