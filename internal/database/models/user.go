package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a submitter who chose to introduce themselves. It is keyed by the
// Telegram user ID so repeated submissions update one row.
type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TelegramID *string   `gorm:"uniqueIndex"`
	Name       string
	Relation   string
	Contact    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
