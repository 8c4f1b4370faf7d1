package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/role"
	"github.com/rdelolmomor/CalioBackend/internal/storage"
)

// HistoryQuery scopes a room-history read to one caller.
type HistoryQuery struct {
	Login      string
	RoomID     uint
	PlatformID int
	Role       role.Role
	RoomType   models.RoomType
	Filter     string
}

type MessageRepository interface {
	Create(message *models.Message) (uint, error)
	AppendState(login string, messageID uint, stateID int) (bool, error)
	AnswerByID(messageID uint) (*models.Message, error)
	Available(q HistoryQuery) ([]models.Message, error)
	Filtered(q HistoryQuery) ([]models.Message, error)
}

type messageRepository struct {
	db *storage.PostgresDB
}

func NewMessageRepository(db *storage.PostgresDB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(message *models.Message) (uint, error) {
	if err := r.db.Create(message).Error; err != nil {
		return 0, err
	}
	return message.ID, nil
}

// AppendState writes one immutable history record and refreshes the
// message's denormalized snapshot in the same transaction.
func (r *messageRepository) AppendState(login string, messageID uint, stateID int) (bool, error) {
	name := models.StateName(stateID)
	if name == "" {
		return false, fmt.Errorf("state id %d out of range", stateID)
	}
	now := time.Now()
	err := r.db.Transaction(func(tx *gorm.DB) error {
		record := models.MessageState{
			MessageID: messageID,
			StateID:   stateID,
			State:     name,
			Login:     login,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		result := tx.Model(&models.Message{}).
			Where("id = ?", messageID).
			Updates(map[string]interface{}{
				"last_state":  stateID,
				"state_date":  now,
				"state_login": login,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *messageRepository) AnswerByID(messageID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.Where("id = ?", messageID).First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// visible narrows a history query to what the caller's role may read:
// messages authored by readable roles, the caller's own platform unless the
// room is private or the role interplatform, and, for the lowest rank, only
// its own replies and mentions.
func (r *messageRepository) visible(q HistoryQuery) *gorm.DB {
	readable := make([]string, 0, len(q.Role.MessageRoles()))
	for _, id := range q.Role.MessageRoles() {
		readable = append(readable, string(id))
	}

	query := r.db.Table("messages").
		Joins("JOIN user_rooms ON user_rooms.login = messages.emitter AND user_rooms.room_id = messages.room_id").
		Where("messages.room_id = ?", q.RoomID).
		Where("user_rooms.role IN ? OR messages.emitter = ?", readable, q.Login)

	if q.RoomType != models.RoomPrivate && !q.Role.Interplatform {
		query = query.Where("messages.platform_id = ?", q.PlatformID)
	}
	if q.Role.ID == role.Agent {
		query = query.
			Where("messages.previous_id IS NULL OR messages.previous_login = ?", q.Login).
			Where("messages.receiver = '' OR messages.receiver = ?", q.Login)
	}
	return query
}

// Available returns the room history the caller may read: full history for
// common rooms, the current day only for service and private rooms.
func (r *messageRepository) Available(q HistoryQuery) ([]models.Message, error) {
	query := r.visible(q)
	if q.RoomType != models.RoomCommon {
		now := time.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		query = query.Where("messages.date >= ?", midnight)
	}
	var messages []models.Message
	err := query.Order("messages.date").Find(&messages).Error
	return messages, err
}

// Filtered searches the last 72 hours of visible history for a substring.
func (r *messageRepository) Filtered(q HistoryQuery) ([]models.Message, error) {
	since := time.Now().Add(-72 * time.Hour)
	var messages []models.Message
	err := r.visible(q).
		Where("messages.date >= ?", since).
		Where("messages.message LIKE ?", "%"+q.Filter+"%").
		Order("messages.date").
		Find(&messages).Error
	return messages, err
}
