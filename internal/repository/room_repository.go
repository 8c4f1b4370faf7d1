package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/role"
	"github.com/rdelolmomor/CalioBackend/internal/storage"
)

type RoomRepository interface {
	RoomType(roomID uint) (models.RoomType, error)
	RoomByID(roomID uint) (*models.Room, error)
	ServiceRooms(login string) ([]models.RoomMembership, error)
	CommonRooms(login string) ([]models.RoomMembership, error)
	PrivateRooms(login string) ([]models.RoomMembership, error)
	PrivateRoomByName(name string) (*models.Room, error)
	CreatePrivateRoom(creator, name string) (uint, error)
	SetPrivateRoomActive(roomID uint, active bool) (bool, error)
	CreatePrivateRoomRoles(logins []string, roomID uint) error
}

type roomRepository struct {
	db *storage.PostgresDB
}

func NewRoomRepository(db *storage.PostgresDB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) RoomType(roomID uint) (models.RoomType, error) {
	var room models.Room
	err := r.db.Select("type").Where("id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RoomService, nil
	}
	if err != nil {
		return "", err
	}
	return room.Type, nil
}

func (r *roomRepository) RoomByID(roomID uint) (*models.Room, error) {
	var room models.Room
	if err := r.db.Where("id = ?", roomID).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// membershipRow is the join of a role assignment with its room.
type membershipRow struct {
	RoomID        uint
	Name          string
	Type          models.RoomType
	Interplatform bool
	Role          string
}

func (r *roomRepository) roomsOfType(login string, roomType models.RoomType) ([]models.RoomMembership, error) {
	var rows []membershipRow
	err := r.db.Table("user_rooms").
		Select("rooms.id AS room_id, rooms.name, rooms.type, rooms.interplatform, user_rooms.role").
		Joins("JOIN rooms ON rooms.id = user_rooms.room_id").
		Where("user_rooms.login = ? AND user_rooms.active AND rooms.type = ?", login, roomType).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	memberships := make([]models.RoomMembership, 0, len(rows))
	for _, row := range rows {
		// A membership row naming a role outside the table is corrupt and
		// must fail the whole profile load, not be skipped.
		resolved, err := role.Resolve(role.ID(row.Role))
		if err != nil {
			return nil, fmt.Errorf("room %d membership of %s: %w", row.RoomID, login, err)
		}
		memberships = append(memberships, models.RoomMembership{
			RoomID:        row.RoomID,
			RoomName:      row.Name,
			Type:          row.Type,
			Role:          resolved,
			Interplatform: row.Interplatform,
			Sound:         true,
		})
	}
	return memberships, nil
}

func (r *roomRepository) ServiceRooms(login string) ([]models.RoomMembership, error) {
	return r.roomsOfType(login, models.RoomService)
}

func (r *roomRepository) CommonRooms(login string) ([]models.RoomMembership, error) {
	return r.roomsOfType(login, models.RoomCommon)
}

// PrivateRooms returns the login's active private rooms. The room name is
// still the raw "a:b" login pair here; the registry rewrites it to the
// counterpart's display name when composing the profile.
func (r *roomRepository) PrivateRooms(login string) ([]models.RoomMembership, error) {
	var rooms []models.Room
	err := r.db.
		Where("type = ? AND active AND name LIKE ?", models.RoomPrivate, "%"+login+"%").
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	memberships := make([]models.RoomMembership, 0, len(rooms))
	for _, room := range rooms {
		memberships = append(memberships, models.RoomMembership{
			RoomID:   room.ID,
			RoomName: room.Name,
			Type:     models.RoomPrivate,
			Role:     role.PrivateMember(),
			Private:  true,
			Sound:    true,
		})
	}
	return memberships, nil
}

func (r *roomRepository) PrivateRoomByName(name string) (*models.Room, error) {
	var room models.Room
	err := r.db.Where("type = ? AND name = ?", models.RoomPrivate, name).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) CreatePrivateRoom(creator, name string) (uint, error) {
	room := models.Room{
		Name:    name,
		Type:    models.RoomPrivate,
		Creator: creator,
		Active:  true,
	}
	if err := r.db.Create(&room).Error; err != nil {
		return 0, err
	}
	return room.ID, nil
}

func (r *roomRepository) SetPrivateRoomActive(roomID uint, active bool) (bool, error) {
	result := r.db.Model(&models.Room{}).
		Where("id = ? AND type = ?", roomID, models.RoomPrivate).
		Update("active", active)
	return result.RowsAffected > 0, result.Error
}

// CreatePrivateRoomRoles grants both members their restricted room role in
// one transaction.
func (r *roomRepository) CreatePrivateRoomRoles(logins []string, roomID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, login := range logins {
			row := models.UserRoom{
				Login:  login,
				RoomID: roomID,
				Role:   string(role.SuperAgent),
				Active: true,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
