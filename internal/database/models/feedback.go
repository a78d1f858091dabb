package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeedbackStatus is the moderation lifecycle position of a feedback.
type FeedbackStatus string

const (
	StatusNew        FeedbackStatus = "new"
	StatusSeen       FeedbackStatus = "seen"
	StatusInProgress FeedbackStatus = "in_progress"
	StatusDone       FeedbackStatus = "done"
	StatusRejected   FeedbackStatus = "rejected"
)

// AllStatuses lists statuses in display order.
var AllStatuses = []FeedbackStatus{StatusNew, StatusSeen, StatusInProgress, StatusDone, StatusRejected}

// Valid reports whether s is a known status.
func (s FeedbackStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Feedback is one submitted feedback. UserID is nil for anonymous feedback.
type Feedback struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserID          *uuid.UUID     `gorm:"type:uuid;index"`
	User            *User          `gorm:"constraint:OnDelete:SET NULL"`
	Type            string         `gorm:"not null"`
	Status          FeedbackStatus `gorm:"not null;default:new;index"`
	Text            string         `gorm:"not null"`
	LikesCount      int            `gorm:"not null;default:0;check:likes_count >= 0"`
	SubmissionToken string         `gorm:"uniqueIndex"`
	AdminMessageID  *int64
	Attachments     []Attachment `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time    `gorm:"index"`
	UpdatedAt       time.Time
}

// TableName keeps the singular table name used by the rest of the system.
func (Feedback) TableName() string {
	return "feedback"
}

func (f *Feedback) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// ShortID is the prefix shown on admin cards.
func (f *Feedback) ShortID() string {
	return f.ID.String()[:8]
}

// Attachment is a stored file linked to a feedback.
type Attachment struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	FeedbackID uuid.UUID `gorm:"type:uuid;not null;index"`
	Type       string    `gorm:"not null"`
	S3Key      string    `gorm:"column:s3_key;not null"`
	CreatedAt  time.Time
}

func (a *Attachment) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
