package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an identity handed out by the auth collaborator.
// It is immutable after creation.
type User struct {
	ID        string    `gorm:"primaryKey" json:"id"` // Анонімний UUID
	Email     string    `gorm:"index" json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate це хук GORM, який викликається перед створенням запису.
// Він генерує новий UUID для користувача, якщо ID ще не встановлено.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}
