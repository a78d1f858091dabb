package handlers

import (
	"context"
	"strings"

	"feedback-bot/internal/conversation"
	"feedback-bot/internal/locales"

	"github.com/mymmrac/telego"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
)

// HandleMessage processes a single (non-album) message. Conversations run in
// private chats only; other chats get commands and nothing else.
func (h *MessageHandler) HandleMessage(ctx context.Context, message telego.Message) error {
	if strings.HasPrefix(message.Text, "/") {
		return h.HandleCommand(ctx, message)
	}
	if message.Chat.Type != telego.ChatTypePrivate {
		return nil
	}

	loc := getLocalizer(message.From)
	ev, ok := eventFromMessage(loc, message)
	if !ok {
		log.WithField("message_id", message.MessageID).Debug("Ignoring unsupported message")
		return nil
	}
	return h.dispatch(ctx, conversationOf(message), loc, ev)
}

// HandleMediaGroup processes the messages of one album as a single batch so
// the user gets one reply per outcome instead of one per file.
func (h *MessageHandler) HandleMediaGroup(ctx context.Context, groupID string, messages []telego.Message) error {
	if len(messages) == 0 {
		return nil
	}
	first := messages[0]
	if first.Chat.Type != telego.ChatTypePrivate {
		return nil
	}

	loc := getLocalizer(first.From)
	events := make([]conversation.Event, 0, len(messages))
	for _, m := range messages {
		if ev, ok := mediaEvent(m); ok {
			events = append(events, ev)
		}
	}
	if len(events) == 0 {
		return nil
	}
	log.WithFields(log.Fields{"group_id": groupID, "files": len(events)}).Debug("Processing album")
	return h.dispatch(ctx, conversationOf(first), loc, events...)
}

// eventFromMessage maps a message to a conversation event. Typed text equal
// to the send or cancel label counts as pressing that control.
func eventFromMessage(loc *i18n.Localizer, message telego.Message) (conversation.Event, bool) {
	if ev, ok := mediaEvent(message); ok {
		return ev, true
	}
	text := strings.TrimSpace(message.Text)
	if text == "" {
		return nil, false
	}
	switch text {
	case locales.GetMessage(loc, "BtnSend", nil, nil):
		return conversation.SendPressed{}, true
	case locales.GetMessage(loc, "BtnCancel", nil, nil):
		return conversation.CancelPressed{}, true
	}
	return conversation.Text{Body: text}, true
}

func mediaEvent(message telego.Message) (conversation.Event, bool) {
	switch {
	case len(message.Photo) > 0:
		largest := message.Photo[len(message.Photo)-1]
		return conversation.Media{Kind: conversation.KindPhoto, FileID: largest.FileID, UniqueID: largest.FileUniqueID}, true
	case message.Document != nil:
		d := message.Document
		return conversation.Media{Kind: conversation.KindDocument, FileID: d.FileID, UniqueID: d.FileUniqueID, MimeType: d.MimeType}, true
	case message.Video != nil:
		v := message.Video
		return conversation.Media{Kind: conversation.KindOther, FileID: v.FileID, UniqueID: v.FileUniqueID, MimeType: v.MimeType}, true
	}
	return nil, false
}
