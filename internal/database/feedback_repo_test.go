package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"feedback-bot/internal/database/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestRepository opens a private in-memory SQLite database with the
// production schema.
func newTestRepository(t *testing.T) (*GormFeedbackRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, Migrate(db))
	repo := NewGormFeedbackRepository(db)
	repo.now = func() time.Time { return time.Now().UTC() }
	return repo, db
}

func TestUpsertIdentityLastWriteWins(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	first, err := repo.UpsertIdentity(ctx, IdentityInput{TelegramID: 555, Name: "Anna", Relation: "guest", Contact: "+380501112233"})
	require.NoError(t, err)
	second, err := repo.UpsertIdentity(ctx, IdentityInput{TelegramID: 555, Name: "Anna K.", Relation: "member", Contact: "@anna"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var users []models.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "555", *users[0].TelegramID)
	assert.Equal(t, "Anna K.", users[0].Name)
	assert.Equal(t, "member", users[0].Relation)
	assert.Equal(t, "@anna", users[0].Contact)
}

func TestCreateFeedbackWithAttachment(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	userID, err := repo.UpsertIdentity(ctx, IdentityInput{TelegramID: 9, Name: "Petro", Relation: "volunteer"})
	require.NoError(t, err)

	fb, err := repo.CreateFeedback(ctx, NewFeedback{
		UserID:          &userID,
		Type:            "problem",
		Text:            "Broken heater",
		SubmissionToken: "tok-1",
		Attachments:     []models.Attachment{{Type: "photo", S3Key: "feedback/9/1-a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, fb.Status)

	view, err := repo.GetFeedbackView(ctx, fb.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.AttachmentsCount)
	require.NotNil(t, view.Feedback.User)
	assert.Equal(t, "Petro", view.Feedback.User.Name)

	attachments, err := repo.ListAttachments(ctx, fb.ID)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "feedback/9/1-a", attachments[0].S3Key)

	byToken, err := repo.FindBySubmissionToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, fb.ID, byToken.ID)
	assert.Nil(t, byToken.AdminMessageID)

	require.NoError(t, repo.SetAdminMessageID(ctx, fb.ID, 77))
	byToken, err = repo.FindBySubmissionToken(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, byToken.AdminMessageID)
	assert.Equal(t, int64(77), *byToken.AdminMessageID)
}

func TestCreateFeedbackRollsBackWhenAttachmentFails(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	dup := uuid.New()
	_, err := repo.CreateFeedback(ctx, NewFeedback{
		Type:            "idea",
		Text:            "Coffee after service",
		SubmissionToken: "tok-2",
		Attachments: []models.Attachment{
			{ID: dup, Type: "photo", S3Key: "feedback/anon/1-a"},
			{ID: dup, Type: "photo", S3Key: "feedback/anon/2-b"},
		},
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Feedback{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.Attachment{}).Count(&count).Error)
	assert.Zero(t, count)

	_, err = repo.FindBySubmissionToken(ctx, "tok-2")
	assert.ErrorIs(t, err, ErrFeedbackNotFound)
}

func TestCreateFeedbackRejectsReusedToken(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.CreateFeedback(ctx, NewFeedback{Type: "thanks", Text: "Thank you", SubmissionToken: "tok-3"})
	require.NoError(t, err)
	_, err = repo.CreateFeedback(ctx, NewFeedback{Type: "thanks", Text: "Thank you", SubmissionToken: "tok-3"})
	assert.Error(t, err)
}

func TestUpdateStatus(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.New(), models.StatusDone), ErrFeedbackNotFound)

	fb, err := repo.CreateFeedback(ctx, NewFeedback{Type: "question", Text: "Where to park?", SubmissionToken: "tok-4"})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, fb.ID, models.StatusSeen))
	require.NoError(t, repo.UpdateStatus(ctx, fb.ID, models.StatusDone))

	view, err := repo.GetFeedbackView(ctx, fb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, view.Feedback.Status)
	assert.Nil(t, view.Feedback.User)

	_, err = repo.GetFeedbackView(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrFeedbackNotFound)
}

func TestCountByStatusSinceFillsMissingStatuses(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	for i, status := range []models.FeedbackStatus{models.StatusNew, models.StatusNew, models.StatusDone} {
		fb, err := repo.CreateFeedback(ctx, NewFeedback{Type: "idea", Text: "x", SubmissionToken: fmt.Sprintf("tok-c%d", i)})
		require.NoError(t, err)
		if status != models.StatusNew {
			require.NoError(t, repo.UpdateStatus(ctx, fb.ID, status))
		}
	}
	old, err := repo.CreateFeedback(ctx, NewFeedback{Type: "idea", Text: "old", SubmissionToken: "tok-old"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Feedback{}).Where("id = ?", old.ID).
		Update("created_at", time.Now().UTC().Add(-30*24*time.Hour)).Error)

	counts, err := repo.CountByStatusSince(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[models.FeedbackStatus]int64{
		models.StatusNew:        2,
		models.StatusSeen:       0,
		models.StatusInProgress: 0,
		models.StatusDone:       1,
		models.StatusRejected:   0,
	}, counts)
}
