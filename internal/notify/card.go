package notify

import (
	"fmt"
	"strings"

	"feedback-bot/internal/conversation"
	"feedback-bot/internal/database"
	"feedback-bot/internal/database/models"
	"feedback-bot/internal/locales"

	"github.com/google/uuid"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// Card text limits: the first card quotes more, re-rendered cards leave room for edits.
const (
	SubmitTextLimit   = 400
	RerenderTextLimit = 350
)

// Card is the admin-facing summary of one feedback.
type Card struct {
	FeedbackID       uuid.UUID
	Type             conversation.FeedbackType
	Status           models.FeedbackStatus
	Anonymous        bool
	Name             string
	Relation         conversation.Relation
	Contact          string
	Text             string
	AttachmentsCount int
}

// CardFromView builds a card from a stored feedback, truncating its text to textLimit runes.
func CardFromView(view *database.FeedbackView, textLimit int) Card {
	fb := view.Feedback
	card := Card{
		FeedbackID:       fb.ID,
		Type:             conversation.FeedbackType(fb.Type),
		Status:           fb.Status,
		Anonymous:        fb.User == nil,
		Text:             TruncateText(fb.Text, textLimit),
		AttachmentsCount: view.AttachmentsCount,
	}
	if fb.User != nil {
		card.Name = fb.User.Name
		card.Relation = conversation.Relation(fb.User.Relation)
		card.Contact = fb.User.Contact
	}
	if card.Status == "" {
		card.Status = models.StatusNew
	}
	return card
}

// Render formats the card text in the localizer's language.
func (c Card) Render(loc *i18n.Localizer) string {
	msg := func(id string, data map[string]interface{}) string {
		return locales.GetMessage(loc, id, data, nil)
	}
	none := msg("CardNoValue", nil)
	orNone := func(s string) string {
		if s == "" {
			return none
		}
		return s
	}

	title := msg("CardTitle", nil)
	if c.Status == models.StatusNew {
		title = msg("CardTitleNew", nil)
	}

	name := msg("CardAnonymous", nil)
	relation := none
	if !c.Anonymous {
		name = orNone(c.Name)
		if c.Relation != "" {
			relation = RelationLabel(loc, c.Relation)
		}
	}

	attachments := msg("CardNone", nil)
	if c.AttachmentsCount > 0 {
		attachments = msg("CardAttachmentsCount", map[string]interface{}{"Count": c.AttachmentsCount})
	}

	lines := []string{
		fmt.Sprintf("📨 %s #%s", title, c.FeedbackID.String()[:8]),
		"",
		msg("CardType", map[string]interface{}{"Type": TypeLabel(loc, c.Type)}),
		msg("CardStatus", map[string]interface{}{"Status": StatusLabel(loc, c.Status)}),
		"",
		msg("CardFrom", nil),
		"– " + name,
		msg("CardRelation", map[string]interface{}{"Relation": relation}),
		"",
		msg("CardContact", map[string]interface{}{"Contact": orNone(c.Contact)}),
		"",
		msg("CardText", nil),
		"«" + c.Text + "»",
		"",
		msg("CardAttachments", map[string]interface{}{"Value": attachments}),
	}
	return strings.Join(lines, "\n")
}

// TruncateText cuts s to limit runes, marking the cut with an ellipsis.
func TruncateText(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	return string(r[:limit-1]) + "…"
}
