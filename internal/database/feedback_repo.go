package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"feedback-bot/internal/database/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormFeedbackRepository implements FeedbackRepository on Postgres.
type GormFeedbackRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormFeedbackRepository creates a repository on an open gorm handle.
func NewGormFeedbackRepository(db *gorm.DB) *GormFeedbackRepository {
	return &GormFeedbackRepository{db: db, now: time.Now}
}

// UpsertIdentity writes the identity with an insert-or-update on telegram_id
// and reads the row back, so concurrent submissions from one user converge on
// a single row. The latest name, relation and contact win.
func (r *GormFeedbackRepository) UpsertIdentity(ctx context.Context, in IdentityInput) (uuid.UUID, error) {
	telegramID := strconv.FormatInt(in.TelegramID, 10)
	candidate := models.User{
		TelegramID: &telegramID,
		Name:       in.Name,
		Relation:   in.Relation,
		Contact:    in.Contact,
	}

	var stored models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "telegram_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "relation", "contact", "updated_at"}),
		}).Create(&candidate).Error
		if err != nil {
			return err
		}
		return tx.Where("telegram_id = ?", telegramID).First(&stored).Error
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert user %s: %w", telegramID, err)
	}
	return stored.ID, nil
}

func (r *GormFeedbackRepository) FindBySubmissionToken(ctx context.Context, token string) (*models.Feedback, error) {
	var fb models.Feedback
	err := r.db.WithContext(ctx).Where("submission_token = ?", token).First(&fb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFeedbackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find feedback by token: %w", err)
	}
	return &fb, nil
}

// CreateFeedback inserts the feedback with status new and all attachments in
// one transaction. Nothing is written if any insert fails.
func (r *GormFeedbackRepository) CreateFeedback(ctx context.Context, in NewFeedback) (*models.Feedback, error) {
	fb := models.Feedback{
		ID:              uuid.New(),
		UserID:          in.UserID,
		Type:            in.Type,
		Status:          models.StatusNew,
		Text:            in.Text,
		SubmissionToken: in.SubmissionToken,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&fb).Error; err != nil {
			return fmt.Errorf("insert feedback: %w", err)
		}
		if len(in.Attachments) == 0 {
			return nil
		}
		attachments := make([]models.Attachment, len(in.Attachments))
		for i, a := range in.Attachments {
			a.FeedbackID = fb.ID
			attachments[i] = a
		}
		if err := tx.Create(&attachments).Error; err != nil {
			return fmt.Errorf("insert attachments: %w", err)
		}
		fb.Attachments = attachments
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create feedback: %w", err)
	}
	return &fb, nil
}

func (r *GormFeedbackRepository) SetAdminMessageID(ctx context.Context, id uuid.UUID, messageID int64) error {
	err := r.db.WithContext(ctx).Model(&models.Feedback{}).
		Where("id = ?", id).
		Update("admin_message_id", messageID).Error
	if err != nil {
		return fmt.Errorf("failed to store admin message for feedback %s: %w", id, err)
	}
	return nil
}

// UpdateStatus overwrites status and updated_at. Concurrent updates are last
// write wins.
func (r *GormFeedbackRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.FeedbackStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Feedback{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": r.now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update status of feedback %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrFeedbackNotFound
	}
	return nil
}

func (r *GormFeedbackRepository) GetFeedbackView(ctx context.Context, id uuid.UUID) (*FeedbackView, error) {
	var fb models.Feedback
	err := r.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&fb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFeedbackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback %s: %w", id, err)
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Attachment{}).Where("feedback_id = ?", id).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to count attachments of feedback %s: %w", id, err)
	}
	return &FeedbackView{Feedback: fb, AttachmentsCount: int(count)}, nil
}

func (r *GormFeedbackRepository) ListAttachments(ctx context.Context, feedbackID uuid.UUID) ([]models.Attachment, error) {
	var attachments []models.Attachment
	err := r.db.WithContext(ctx).Where("feedback_id = ?", feedbackID).Order("created_at").Find(&attachments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments of feedback %s: %w", feedbackID, err)
	}
	return attachments, nil
}

func (r *GormFeedbackRepository) CountByStatusSince(ctx context.Context, since time.Time) (map[models.FeedbackStatus]int64, error) {
	var rows []struct {
		Status models.FeedbackStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Feedback{}).
		Select("status, count(*) as count").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count feedback since %s: %w", since.Format(time.RFC3339), err)
	}

	counts := make(map[models.FeedbackStatus]int64, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
