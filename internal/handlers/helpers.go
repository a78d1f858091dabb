package handlers

import (
	"context"
	"time"

	"feedback-bot/internal/conversation"
	"feedback-bot/internal/locales"
	"feedback-bot/internal/notify"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
)

// sendText sends a plain message. Failures are logged, not returned.
func (h *MessageHandler) sendText(ctx context.Context, chatID int64, text string) {
	if _, err := h.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Failed to send message")
	}
}

// sendError tells the user something went wrong and returns the original error
// so the update loop can report it.
func (h *MessageHandler) sendError(ctx context.Context, chatID int64, loc *i18n.Localizer, originalErr error) error {
	h.sendText(ctx, chatID, locales.GetMessage(loc, "MsgErrorGeneral", nil, nil))
	return originalErr
}

// sendReplies renders conversation replies in order.
func (h *MessageHandler) sendReplies(ctx context.Context, chatID int64, loc *i18n.Localizer, replies []conversation.Reply) {
	for _, r := range replies {
		params := tu.Message(tu.ID(chatID), locales.GetMessage(loc, r.MessageID, r.Data, nil))
		if markup := replyMarkup(loc, r.Keyboard); markup != nil {
			params = params.WithReplyMarkup(markup)
		}
		if _, err := h.bot.SendMessage(ctx, params); err != nil {
			log.WithError(err).WithFields(log.Fields{"chat_id": chatID, "message": r.MessageID}).Error("Failed to send reply")
		}
	}
}

func replyMarkup(loc *i18n.Localizer, kb conversation.Keyboard) telego.ReplyMarkup {
	switch kb {
	case conversation.KeyboardIdentity:
		return notify.IdentityKeyboard(loc)
	case conversation.KeyboardRelation:
		return notify.RelationKeyboard(loc)
	case conversation.KeyboardType:
		return notify.TypeKeyboard(loc)
	case conversation.KeyboardAttachments:
		return notify.AttachmentsKeyboard(loc)
	case conversation.KeyboardRemove:
		return tu.ReplyKeyboardRemove()
	}
	return nil
}

// getLocalizer picks the user's language when the catalog has it.
func getLocalizer(user *telego.User) *i18n.Localizer {
	if user != nil && user.LanguageCode != "" {
		return locales.NewLocalizer(user.LanguageCode)
	}
	return locales.DefaultLocalizer()
}

func conversationOf(message telego.Message) conversation.Conversation {
	conv := conversation.Conversation{ChatID: message.Chat.ID}
	if message.From != nil {
		conv.UserID = message.From.ID
	}
	return conv
}

// ReplyTimeout bounds sending the replies of one update.
const ReplyTimeout = 10 * time.Second

// replyContext outlives the update deadline, so a slow upload or commit
// still ends with a message to the user.
func replyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ReplyTimeout)
}

// dispatch runs events through the conversation service and renders replies.
func (h *MessageHandler) dispatch(ctx context.Context, conv conversation.Conversation, loc *i18n.Localizer, events ...conversation.Event) error {
	replies, err := h.conversations.Handle(ctx, conv, events...)
	replyCtx, cancel := replyContext(ctx)
	defer cancel()
	if err != nil {
		return h.sendError(replyCtx, conv.ChatID, loc, err)
	}
	h.sendReplies(replyCtx, conv.ChatID, loc, replies)
	return nil
}
