package database

import (
	"context"
	"errors"
	"time"

	"feedback-bot/internal/database/models"

	"github.com/google/uuid"
)

// ErrFeedbackNotFound is returned when no feedback matches the ID or token.
var ErrFeedbackNotFound = errors.New("feedback not found")

// IdentityInput is the identity written to the users table.
type IdentityInput struct {
	TelegramID int64
	Name       string
	Relation   string
	Contact    string
}

// NewFeedback is a feedback row together with its attachments, inserted atomically.
type NewFeedback struct {
	UserID          *uuid.UUID
	Type            string
	Text            string
	SubmissionToken string
	Attachments     []models.Attachment
}

// FeedbackView is a feedback as shown on the admin card.
type FeedbackView struct {
	Feedback         models.Feedback
	AttachmentsCount int
}

// FeedbackRepository is the relational store used by the committer and the
// moderation protocol.
type FeedbackRepository interface {
	// UpsertIdentity creates or updates the user keyed by Telegram ID and returns its ID.
	UpsertIdentity(ctx context.Context, in IdentityInput) (uuid.UUID, error)
	// FindBySubmissionToken returns ErrFeedbackNotFound when no row carries the token.
	FindBySubmissionToken(ctx context.Context, token string) (*models.Feedback, error)
	// CreateFeedback inserts the feedback and its attachments in one transaction.
	CreateFeedback(ctx context.Context, in NewFeedback) (*models.Feedback, error)
	SetAdminMessageID(ctx context.Context, id uuid.UUID, messageID int64) error
	// UpdateStatus returns ErrFeedbackNotFound when the row does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.FeedbackStatus) error
	// GetFeedbackView loads the feedback with its user and attachment count.
	GetFeedbackView(ctx context.Context, id uuid.UUID) (*FeedbackView, error)
	ListAttachments(ctx context.Context, feedbackID uuid.UUID) ([]models.Attachment, error)
	// CountByStatusSince counts feedback created at or after since, by status.
	CountByStatusSince(ctx context.Context, since time.Time) (map[models.FeedbackStatus]int64, error)
}
