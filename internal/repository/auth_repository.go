package repository

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/storage"
)

var (
	// ErrInvalidCredential covers both unknown logins and wrong passwords.
	ErrInvalidCredential = errors.New("invalid login or password")
	// ErrAccessDenied marks an account that exists but may not use the chat.
	ErrAccessDenied = errors.New("user has no access to the chat")
)

// AuthRepository owns credential checks and the persistent session rows.
type AuthRepository interface {
	CheckCredentials(login, password string) error
	CreateSession(login, token string, expireAt time.Time) error
	ActiveSession(login, token string) (*models.SessionRecord, error)
	RefreshSession(login, token string, expireAt time.Time) (bool, error)
	LinkSocket(login, token, socketID string) (bool, error)
	UnlinkSocket(login, token string) (bool, error)
	UpdateSessionStatus(login, token, status string) (bool, error)
}

type authRepository struct {
	db *storage.PostgresDB
}

func NewAuthRepository(db *storage.PostgresDB) AuthRepository {
	return &authRepository{db: db}
}

func (r *authRepository) CheckCredentials(login, password string) error {
	var user models.User
	err := r.db.Where("login = ?", login).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidCredential
	}
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return ErrInvalidCredential
	}
	if !user.CanAccess {
		return ErrAccessDenied
	}
	return nil
}

// CreateSession supersedes any open session rows for the login and inserts a
// fresh AUTHENTICATED one. The registry holds at most one session per
// identity; the store mirrors that.
func (r *authRepository) CreateSession(login, token string, expireAt time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SessionRecord{}).
			Where("login = ? AND state IN ?", login, []string{models.SessionAuthenticated, models.SessionActive}).
			Update("state", models.SessionClosed).Error; err != nil {
			return err
		}
		record := models.SessionRecord{
			Login:    login,
			Token:    token,
			State:    models.SessionAuthenticated,
			ExpireAt: expireAt,
		}
		return tx.Create(&record).Error
	})
}

func (r *authRepository) ActiveSession(login, token string) (*models.SessionRecord, error) {
	var record models.SessionRecord
	err := r.db.
		Where("login = ? AND token = ? AND state IN ? AND expire_at > ?",
			login, token, []string{models.SessionAuthenticated, models.SessionActive}, time.Now()).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *authRepository) RefreshSession(login, token string, expireAt time.Time) (bool, error) {
	result := r.db.Model(&models.SessionRecord{}).
		Where("login = ? AND token = ?", login, token).
		Update("expire_at", expireAt)
	return result.RowsAffected > 0, result.Error
}

func (r *authRepository) LinkSocket(login, token, socketID string) (bool, error) {
	result := r.db.Model(&models.SessionRecord{}).
		Where("login = ? AND token = ?", login, token).
		Updates(map[string]interface{}{"socket_id": socketID, "state": models.SessionActive})
	return result.RowsAffected > 0, result.Error
}

func (r *authRepository) UnlinkSocket(login, token string) (bool, error) {
	result := r.db.Model(&models.SessionRecord{}).
		Where("login = ? AND token = ?", login, token).
		Updates(map[string]interface{}{"socket_id": "", "state": models.SessionAuthenticated})
	return result.RowsAffected > 0, result.Error
}

// UpdateSessionStatus moves a session to a terminal state. Closing and
// expiring also cut the expiry instant so the row can never validate again.
func (r *authRepository) UpdateSessionStatus(login, token, status string) (bool, error) {
	updates := map[string]interface{}{"state": status}
	if status == models.SessionClosed || status == models.SessionExpired {
		updates["expire_at"] = time.Now()
	}
	result := r.db.Model(&models.SessionRecord{}).
		Where("login = ? AND token = ?", login, token).
		Updates(updates)
	return result.RowsAffected > 0, result.Error
}
