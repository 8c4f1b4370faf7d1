package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/role"
	"github.com/rdelolmomor/CalioBackend/internal/storage"
)

// ErrNoRoomAccess marks a user with no role assignment in the room.
var ErrNoRoomAccess = errors.New("user has no access to the room")

// ConnectedUser is one row of the online-user listing.
type ConnectedUser struct {
	Login      string `json:"login"`
	Name       string `json:"name"`
	PlatformID int    `json:"platformId"`
	RoomID     uint   `json:"roomId"`
	Role       string `json:"role"`
}

type UserRepository interface {
	FindByLogin(login string) (*models.User, error)
	UpdateAvatar(login, avatar string) (bool, error)
	NamesByLogins(logins []string) (map[string]string, error)
	RoleInRoom(login string, roomID uint) (role.Role, error)
	CreateUserRole(login string, roomID uint, id role.ID) error
	ChangeRole(login string, roomID uint, id role.ID) (bool, error)
	ConnectedUsers(login string, roomID uint, platformID int, viewer role.Role) ([]ConnectedUser, error)
	UserDataByRoom(login string, roomID uint) (*ConnectedUser, error)
}

type userRepository struct {
	db *storage.PostgresDB
}

func NewUserRepository(db *storage.PostgresDB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByLogin(login string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("login = ?", login).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) UpdateAvatar(login, avatar string) (bool, error) {
	result := r.db.Model(&models.User{}).Where("login = ?", login).Update("avatar", avatar)
	return result.RowsAffected > 0, result.Error
}

func (r *userRepository) NamesByLogins(logins []string) (map[string]string, error) {
	if len(logins) == 0 {
		return map[string]string{}, nil
	}
	var users []models.User
	if err := r.db.Select("login", "name").Where("login IN ?", logins).Find(&users).Error; err != nil {
		return nil, err
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.Login] = u.Name
	}
	return names, nil
}

func (r *userRepository) RoleInRoom(login string, roomID uint) (role.Role, error) {
	var row models.UserRoom
	err := r.db.Where("login = ? AND room_id = ? AND active", login, roomID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return role.Role{}, ErrNoRoomAccess
	}
	if err != nil {
		return role.Role{}, err
	}
	return role.Resolve(role.ID(row.Role))
}

func (r *userRepository) CreateUserRole(login string, roomID uint, id role.ID) error {
	row := models.UserRoom{Login: login, RoomID: roomID, Role: string(id), Active: true}
	return r.db.Create(&row).Error
}

func (r *userRepository) ChangeRole(login string, roomID uint, id role.ID) (bool, error) {
	result := r.db.Model(&models.UserRoom{}).
		Where("login = ? AND room_id = ?", login, roomID).
		Update("role", string(id))
	return result.RowsAffected > 0, result.Error
}

// ConnectedUsers lists the room members with a live ACTIVE session, filtered
// down to the roles the viewer may see online and, for platform-bound
// viewers, to the viewer's own platform.
func (r *userRepository) ConnectedUsers(login string, roomID uint, platformID int, viewer role.Role) ([]ConnectedUser, error) {
	query := r.db.Table("users").
		Select(`users.login, users.name, users.platform_id, user_rooms.room_id, user_rooms.role`).
		Joins("JOIN user_rooms ON user_rooms.login = users.login AND user_rooms.active").
		Joins("JOIN session_records ON session_records.login = users.login").
		Where("user_rooms.room_id = ?", roomID).
		Where("users.login <> ?", login).
		Where("session_records.state = ? AND session_records.expire_at > ?", models.SessionActive, time.Now())

	if !viewer.CanSeeOnline.All {
		if len(viewer.CanSeeOnline.Roles) == 0 {
			return []ConnectedUser{}, nil
		}
		visible := make([]string, 0, len(viewer.CanSeeOnline.Roles))
		for _, id := range viewer.CanSeeOnline.Roles {
			visible = append(visible, string(id))
		}
		query = query.Where("user_rooms.role IN ?", visible)
	}
	if !viewer.Interplatform {
		query = query.Where("users.platform_id = ?", platformID)
	}

	var users []ConnectedUser
	if err := query.Scan(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UserDataByRoom returns the user's listing row if they are a room member
// with a live ACTIVE session, nil otherwise.
func (r *userRepository) UserDataByRoom(login string, roomID uint) (*ConnectedUser, error) {
	var user ConnectedUser
	err := r.db.Table("users").
		Select(`users.login, users.name, users.platform_id, user_rooms.room_id, user_rooms.role`).
		Joins("JOIN user_rooms ON user_rooms.login = users.login AND user_rooms.active").
		Joins("JOIN session_records ON session_records.login = users.login").
		Where("users.login = ? AND user_rooms.room_id = ?", login, roomID).
		Where("session_records.state = ? AND session_records.expire_at > ?", models.SessionActive, time.Now()).
		Limit(1).
		Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.Login == "" {
		return nil, nil
	}
	return &user, nil
}
