package notify

import (
	"feedback-bot/internal/conversation"
	"feedback-bot/internal/database/models"
	"feedback-bot/internal/locales"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

var relationLabels = map[conversation.Relation]string{
	conversation.RelationMember:    "BtnRelationMember",
	conversation.RelationGuest:     "BtnRelationGuest",
	conversation.RelationVolunteer: "BtnRelationVolunteer",
	conversation.RelationOther:     "BtnRelationOther",
}

var typeLabels = map[conversation.FeedbackType]string{
	conversation.TypeIdea:     "BtnTypeIdea",
	conversation.TypeProblem:  "BtnTypeProblem",
	conversation.TypeThanks:   "BtnTypeThanks",
	conversation.TypeQuestion: "BtnTypeQuestion",
}

var statusLabels = map[models.FeedbackStatus]string{
	models.StatusNew:        "StatusNew",
	models.StatusSeen:       "BtnStatusSeen",
	models.StatusInProgress: "BtnStatusInProgress",
	models.StatusDone:       "BtnStatusDone",
	models.StatusRejected:   "BtnStatusRejected",
}

// RelationLabel returns the localized relation, or the raw value when unknown.
func RelationLabel(loc *i18n.Localizer, r conversation.Relation) string {
	if id, ok := relationLabels[r]; ok {
		return locales.GetMessage(loc, id, nil, nil)
	}
	return string(r)
}

func TypeLabel(loc *i18n.Localizer, t conversation.FeedbackType) string {
	if id, ok := typeLabels[t]; ok {
		return locales.GetMessage(loc, id, nil, nil)
	}
	return string(t)
}

func StatusLabel(loc *i18n.Localizer, s models.FeedbackStatus) string {
	if id, ok := statusLabels[s]; ok {
		return locales.GetMessage(loc, id, nil, nil)
	}
	return string(s)
}

func button(loc *i18n.Localizer, msgID, data string) telego.InlineKeyboardButton {
	return tu.InlineKeyboardButton(locales.GetMessage(loc, msgID, nil, nil)).WithCallbackData(data)
}

func IdentityKeyboard(loc *i18n.Localizer) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(button(loc, "BtnAnonymous", FormatChoice(PrefixIdentity, string(conversation.IdentityAnonymous)))),
		tu.InlineKeyboardRow(button(loc, "BtnName", FormatChoice(PrefixIdentity, string(conversation.IdentityName)))),
		tu.InlineKeyboardRow(button(loc, "BtnNameAndContact", FormatChoice(PrefixIdentity, string(conversation.IdentityNameAndContact)))),
	)
}

func RelationKeyboard(loc *i18n.Localizer) *telego.InlineKeyboardMarkup {
	rel := func(r conversation.Relation) telego.InlineKeyboardButton {
		return button(loc, relationLabels[r], FormatChoice(PrefixRelation, string(r)))
	}
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(rel(conversation.RelationMember), rel(conversation.RelationGuest)),
		tu.InlineKeyboardRow(rel(conversation.RelationVolunteer), rel(conversation.RelationOther)),
	)
}

func TypeKeyboard(loc *i18n.Localizer) *telego.InlineKeyboardMarkup {
	var rows [][]telego.InlineKeyboardButton
	for _, t := range []conversation.FeedbackType{conversation.TypeIdea, conversation.TypeProblem, conversation.TypeThanks, conversation.TypeQuestion} {
		rows = append(rows, tu.InlineKeyboardRow(button(loc, typeLabels[t], FormatChoice(PrefixType, string(t)))))
	}
	return tu.InlineKeyboard(rows...)
}

// AttachmentsKeyboard holds the send and cancel controls.
func AttachmentsKeyboard(loc *i18n.Localizer) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(button(loc, "BtnSend", FormatChoice(PrefixAttachments, ControlSend))),
		tu.InlineKeyboardRow(button(loc, "BtnCancel", FormatChoice(PrefixAttachments, ControlCancel))),
	)
}

// StatusKeyboard is attached to every admin card.
func StatusKeyboard(loc *i18n.Localizer, feedbackID uuid.UUID) *telego.InlineKeyboardMarkup {
	st := func(s models.FeedbackStatus) telego.InlineKeyboardButton {
		return button(loc, statusLabels[s], FormatStatusAction(StatusAction{FeedbackID: feedbackID, Status: s}))
	}
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(st(models.StatusSeen), st(models.StatusInProgress)),
		tu.InlineKeyboardRow(st(models.StatusDone), st(models.StatusRejected)),
	)
}
