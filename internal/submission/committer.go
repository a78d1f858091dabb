// Package submission turns a finished conversation into stored feedback and
// announces it in the admin chat.
package submission

import (
	"context"
	"errors"
	"fmt"

	"feedback-bot/internal/conversation"
	"feedback-bot/internal/database"
	"feedback-bot/internal/database/models"
	"feedback-bot/internal/locales"
	"feedback-bot/internal/metrics"
	"feedback-bot/internal/notify"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Repository is the part of the relational store the committer writes to.
type Repository interface {
	UpsertIdentity(ctx context.Context, in database.IdentityInput) (uuid.UUID, error)
	FindBySubmissionToken(ctx context.Context, token string) (*models.Feedback, error)
	CreateFeedback(ctx context.Context, in database.NewFeedback) (*models.Feedback, error)
	SetAdminMessageID(ctx context.Context, id uuid.UUID, messageID int64) error
}

// CardSender posts admin cards.
type CardSender interface {
	SendCard(ctx context.Context, chatID int64, text string, controls *telego.InlineKeyboardMarkup) (int, error)
}

// Committer persists submissions. A submission token is written at most
// once, and its admin card is sent at most once.
type Committer struct {
	repo        Repository
	cards       CardSender
	adminChatID int64
	group       singleflight.Group
}

func NewCommitter(repo Repository, cards CardSender, adminChatID int64) *Committer {
	return &Committer{repo: repo, cards: cards, adminChatID: adminChatID}
}

// Commit stores the submission and returns the feedback ID. Concurrent
// commits of the same submission token share one execution. The conversation
// service already serializes commits of one conversation, so this only merges
// callers that bypass it.
func (c *Committer) Commit(ctx context.Context, req conversation.CommitRequest) (string, error) {
	v, err, shared := c.group.Do(req.Submission.Token, func() (interface{}, error) {
		return c.commit(ctx, req)
	})
	if shared {
		log.WithField("conversation", req.ConversationKey).Debug("Joined in-flight commit")
	}
	if err != nil {
		sentry.CaptureException(err)
		return "", err
	}
	return v.(string), nil
}

func (c *Committer) commit(ctx context.Context, req conversation.CommitRequest) (string, error) {
	sub := req.Submission
	if sub.Token == "" || sub.Text == "" || !sub.Type.Valid() {
		return "", errors.New("incomplete submission")
	}

	fb, err := c.findOrCreate(ctx, req)
	if err != nil {
		return "", err
	}

	if fb.AdminMessageID == nil {
		if err := c.announce(ctx, fb.ID, sub); err != nil {
			return "", err
		}
	}

	metrics.FeedbackCommitted.WithLabelValues(string(sub.Type)).Inc()
	return fb.ID.String(), nil
}

func (c *Committer) findOrCreate(ctx context.Context, req conversation.CommitRequest) (*models.Feedback, error) {
	sub := req.Submission
	fb, err := c.repo.FindBySubmissionToken(ctx, sub.Token)
	if err == nil {
		log.WithFields(log.Fields{"conversation": req.ConversationKey, "feedback_id": fb.ID}).Info("Reusing feedback for repeated submission")
		return fb, nil
	}
	if !errors.Is(err, database.ErrFeedbackNotFound) {
		return nil, err
	}

	var userID *uuid.UUID
	if !sub.Identity.Anonymous() {
		id, err := c.repo.UpsertIdentity(ctx, database.IdentityInput{
			TelegramID: req.UserID,
			Name:       sub.Identity.Name,
			Relation:   string(sub.Identity.Relation),
			Contact:    sub.Identity.Contact,
		})
		if err != nil {
			return nil, err
		}
		userID = &id
	}

	attachments := make([]models.Attachment, 0, len(sub.Attachments))
	for _, a := range sub.Attachments {
		attachments = append(attachments, models.Attachment{Type: string(a.Kind), S3Key: a.ObjectKey})
	}

	fb, err = c.repo.CreateFeedback(ctx, database.NewFeedback{
		UserID:          userID,
		Type:            string(sub.Type),
		Text:            sub.Text,
		SubmissionToken: sub.Token,
		Attachments:     attachments,
	})
	if err != nil {
		// Another process may have won the race on the unique token.
		if existing, findErr := c.repo.FindBySubmissionToken(ctx, sub.Token); findErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return fb, nil
}

func (c *Committer) announce(ctx context.Context, id uuid.UUID, sub conversation.Submission) error {
	loc := locales.DefaultLocalizer()
	card := notify.Card{
		FeedbackID:       id,
		Type:             sub.Type,
		Status:           models.StatusNew,
		Anonymous:        sub.Identity.Anonymous(),
		Name:             sub.Identity.Name,
		Relation:         sub.Identity.Relation,
		Contact:          sub.Identity.Contact,
		Text:             notify.TruncateText(sub.Text, notify.SubmitTextLimit),
		AttachmentsCount: len(sub.Attachments),
	}

	messageID, err := c.cards.SendCard(ctx, c.adminChatID, card.Render(loc), notify.StatusKeyboard(loc, id))
	if err != nil {
		return fmt.Errorf("failed to announce feedback %s: %w", id, err)
	}

	// The card is out; failing here would make the user resend and duplicate it.
	if err := c.repo.SetAdminMessageID(ctx, id, int64(messageID)); err != nil {
		log.WithError(err).WithField("feedback_id", id).Error("Failed to store admin message ID")
		sentry.CaptureException(err)
	}
	return nil
}
