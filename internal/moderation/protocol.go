// Package moderation applies admin decisions to submitted feedback.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedback-bot/internal/auth"
	"feedback-bot/internal/database"
	"feedback-bot/internal/database/models"
	"feedback-bot/internal/locales"
	"feedback-bot/internal/metrics"
	"feedback-bot/internal/notify"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// AttachmentLinkTTL is how long links from /attachments stay valid.
const AttachmentLinkTTL = time.Hour

type Repository interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.FeedbackStatus) error
	GetFeedbackView(ctx context.Context, id uuid.UUID) (*database.FeedbackView, error)
	ListAttachments(ctx context.Context, feedbackID uuid.UUID) ([]models.Attachment, error)
	CountByStatusSince(ctx context.Context, since time.Time) (map[models.FeedbackStatus]int64, error)
}

type Notifier interface {
	EditCard(ctx context.Context, chatID int64, messageID int, text string, controls *telego.InlineKeyboardMarkup) error
	Acknowledge(ctx context.Context, queryID, text string) error
}

// URLSigner produces time-limited read links for stored objects.
type URLSigner interface {
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Action is one press of a status button.
type Action struct {
	QueryID      string
	Data         string
	OriginChatID int64
	MessageID    int
	AdminName    string
}

// Protocol handles status buttons and admin reports.
type Protocol struct {
	repo     Repository
	notifier Notifier
	signer   URLSigner
	admins   *auth.AdminChecker
	now      func() time.Time
}

func NewProtocol(repo Repository, notifier Notifier, signer URLSigner, admins *auth.AdminChecker) *Protocol {
	return &Protocol{repo: repo, notifier: notifier, signer: signer, admins: admins, now: time.Now}
}

// ApplyStatusChange writes the requested status, re-renders the card in place
// and answers the callback exactly once on every path. Racing admins are
// resolved by last write wins.
func (p *Protocol) ApplyStatusChange(ctx context.Context, a Action) (err error) {
	loc := locales.DefaultLocalizer()
	ackText := ""
	defer func() {
		if ackErr := p.notifier.Acknowledge(ctx, a.QueryID, ackText); ackErr != nil {
			log.WithError(ackErr).WithField("query_id", a.QueryID).Warn("Failed to acknowledge status change")
		}
	}()

	if !p.admins.IsAdminChat(a.OriginChatID) {
		ackText = locales.GetMessage(loc, "MsgUnavailable", nil, nil)
		log.WithField("chat_id", a.OriginChatID).Warn("Status change from outside the admin chat")
		return nil
	}

	action, err := notify.ParseStatusAction(a.Data)
	if err != nil {
		log.WithError(err).WithField("data", a.Data).Debug("Ignoring malformed status callback")
		return nil
	}
	logger := log.WithFields(log.Fields{"feedback_id": action.FeedbackID, "status": action.Status})

	if err := p.repo.UpdateStatus(ctx, action.FeedbackID, action.Status); err != nil {
		if errors.Is(err, database.ErrFeedbackNotFound) {
			ackText = locales.GetMessage(loc, "MsgNotFound", nil, nil)
			return nil
		}
		ackText = locales.GetMessage(loc, "MsgErrorGeneral", nil, nil)
		return err
	}
	metrics.StatusChanges.WithLabelValues(string(action.Status)).Inc()

	view, err := p.repo.GetFeedbackView(ctx, action.FeedbackID)
	if err != nil {
		if errors.Is(err, database.ErrFeedbackNotFound) {
			ackText = locales.GetMessage(loc, "MsgNotFound", nil, nil)
			return nil
		}
		ackText = locales.GetMessage(loc, "MsgErrorGeneral", nil, nil)
		return err
	}

	admin := a.AdminName
	if admin == "" {
		admin = locales.GetMessage(loc, "MsgDefaultAdminName", nil, nil)
	}
	ackText = locales.GetMessage(loc, "MsgStatusUpdated", map[string]interface{}{"Admin": admin}, nil)

	text := notify.CardFromView(view, notify.RerenderTextLimit).Render(loc)
	if err := p.notifier.EditCard(ctx, a.OriginChatID, a.MessageID, text, notify.StatusKeyboard(loc, action.FeedbackID)); err != nil {
		return fmt.Errorf("status of %s updated but card not edited: %w", action.FeedbackID, err)
	}
	logger.WithField("admin", admin).Info("Feedback status changed")
	return nil
}

// Period selects the window of a stats report.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
)

// Since returns the start of the period relative to now.
func (pd Period) Since(now time.Time) time.Time {
	if pd == PeriodToday {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	}
	return now.Add(-7 * 24 * time.Hour)
}

// Stats renders the per-status counts of feedback created in the period.
func (p *Protocol) Stats(ctx context.Context, period Period) (string, error) {
	counts, err := p.repo.CountByStatusSince(ctx, period.Since(p.now()))
	if err != nil {
		return "", err
	}

	loc := locales.DefaultLocalizer()
	title := "MsgStatsWeek"
	if period == PeriodToday {
		title = "MsgStatsToday"
	}
	lines := locales.GetMessage(loc, "MsgStatsLines", map[string]interface{}{
		"New":        counts[models.StatusNew],
		"Seen":       counts[models.StatusSeen],
		"InProgress": counts[models.StatusInProgress],
		"Done":       counts[models.StatusDone],
		"Rejected":   counts[models.StatusRejected],
	}, nil)
	return locales.GetMessage(loc, title, nil, nil) + "\n" + lines, nil
}

// AttachmentLinks lists signed links to the attachments of one feedback.
func (p *Protocol) AttachmentLinks(ctx context.Context, rawID string) (string, error) {
	loc := locales.DefaultLocalizer()
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return locales.GetMessage(loc, "MsgAttachmentsUsage", nil, nil), nil
	}

	if _, err := p.repo.GetFeedbackView(ctx, id); err != nil {
		if errors.Is(err, database.ErrFeedbackNotFound) {
			return locales.GetMessage(loc, "MsgNotFound", nil, nil), nil
		}
		return "", err
	}

	attachments, err := p.repo.ListAttachments(ctx, id)
	if err != nil {
		return "", err
	}
	if len(attachments) == 0 {
		return locales.GetMessage(loc, "MsgNoAttachments", nil, nil), nil
	}

	var b strings.Builder
	b.WriteString(locales.GetMessage(loc, "MsgAttachmentsHeader", map[string]interface{}{
		"ID":      id.String()[:8],
		"Minutes": int(AttachmentLinkTTL.Minutes()),
	}, nil))
	for i, a := range attachments {
		url, err := p.signer.SignedReadURL(ctx, a.S3Key, AttachmentLinkTTL)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n%d. %s: %s", i+1, a.Type, url)
	}
	return b.String(), nil
}
