package handlers

import (
	"context"

	"feedback-bot/internal/conversation"
	"feedback-bot/internal/locales"
	"feedback-bot/internal/moderation"
	"feedback-bot/internal/notify"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// HandleCallbackQuery routes inline button presses. Status buttons go to the
// moderator, which answers them itself; everything else is a conversation
// choice answered here exactly once.
func (h *MessageHandler) HandleCallbackQuery(ctx context.Context, query telego.CallbackQuery) error {
	conv := conversation.Conversation{ChatID: query.From.ID, UserID: query.From.ID}
	messageID := 0
	if query.Message != nil {
		conv.ChatID = query.Message.GetChat().ID
		messageID = query.Message.GetMessageID()
	}

	prefix, _, err := notify.Decode(query.Data)
	if err == nil && prefix == notify.PrefixStatus {
		return h.moderator.ApplyStatusChange(ctx, moderation.Action{
			QueryID:      query.ID,
			Data:         query.Data,
			OriginChatID: conv.ChatID,
			MessageID:    messageID,
			AdminName:    adminName(query.From),
		})
	}

	ev, ok := eventFromCallback(query.Data)
	if !ok {
		h.answerCallback(ctx, query.ID, "")
		log.WithField("data", query.Data).Debug("Ignoring unknown callback")
		return nil
	}
	loc := getLocalizer(&query.From)

	// Send may run a full commit, so the button is released first.
	if _, commits := ev.(conversation.SendPressed); commits {
		h.answerCallback(ctx, query.ID, "")
		return h.dispatch(ctx, conv, loc, ev)
	}

	replies, err := h.conversations.Handle(ctx, conv, ev)
	replyCtx, cancel := replyContext(ctx)
	defer cancel()
	if err != nil {
		h.answerCallback(replyCtx, query.ID, "")
		return h.sendError(replyCtx, conv.ChatID, loc, err)
	}
	// A stale button press leaves the chat alone and shows the hint on the button.
	if len(replies) == 1 && replies[0].MessageID == conversation.MsgRestartHint {
		h.answerCallback(replyCtx, query.ID, locales.GetMessage(loc, conversation.MsgRestartHint, nil, nil))
		return nil
	}
	h.answerCallback(replyCtx, query.ID, "")
	h.sendReplies(replyCtx, conv.ChatID, loc, replies)
	return nil
}

// answerCallback acknowledges a button press, optionally with a toast text.
func (h *MessageHandler) answerCallback(ctx context.Context, queryID, text string) {
	params := tu.CallbackQuery(queryID)
	if text != "" {
		params = params.WithText(text)
	}
	if err := h.bot.AnswerCallbackQuery(ctx, params); err != nil {
		log.WithError(err).WithField("query_id", queryID).Warn("Failed to answer callback query")
	}
}

func eventFromCallback(data string) (conversation.Event, bool) {
	choice, err := notify.ParseChoice(data)
	if err != nil {
		return nil, false
	}
	switch choice.Prefix {
	case notify.PrefixIdentity:
		if m := conversation.IdentityMode(choice.Value); m.Valid() {
			return conversation.IdentityChosen{Mode: m}, true
		}
	case notify.PrefixRelation:
		if r := conversation.Relation(choice.Value); r.Valid() {
			return conversation.RelationChosen{Relation: r}, true
		}
	case notify.PrefixType:
		if t := conversation.FeedbackType(choice.Value); t.Valid() {
			return conversation.TypeChosen{Type: t}, true
		}
	case notify.PrefixAttachments:
		switch choice.Value {
		case notify.ControlSend:
			return conversation.SendPressed{}, true
		case notify.ControlCancel:
			return conversation.CancelPressed{}, true
		}
	}
	return nil, false
}

func adminName(u telego.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}
