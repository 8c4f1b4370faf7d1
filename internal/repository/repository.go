package repository

import "github.com/rdelolmomor/CalioBackend/internal/storage"

type Repositories struct {
	Auth    AuthRepository
	User    UserRepository
	Room    RoomRepository
	Message MessageRepository
}

func NewRepositories(db *storage.PostgresDB) *Repositories {
	return &Repositories{
		Auth:    NewAuthRepository(db),
		User:    NewUserRepository(db),
		Room:    NewRoomRepository(db),
		Message: NewMessageRepository(db),
	}
}
