package handlers

import (
	"context"

	"feedback-bot/internal/auth"
	"feedback-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// Command maps a bot command to its handler.
type Command struct {
	Command     string // without the leading slash
	Description string // locale message ID, empty for hidden aliases
	AdminOnly   bool   // answered only in the admin chat
	PrivateOnly bool   // conversation commands, hinted at elsewhere
	Handler     func(ctx context.Context, message telego.Message, args string) error
}

// MessageHandler turns Telegram updates into conversation events and admin
// actions, and renders the results back to the chat.
type MessageHandler struct {
	bot           telegoapi.BotAPI
	conversations ConversationService
	moderator     Moderator
	admins        *auth.AdminChecker
	commands      []Command
}

// NewMessageHandler creates a handler with the full command table.
func NewMessageHandler(bot telegoapi.BotAPI, conversations ConversationService, moderator Moderator, admins *auth.AdminChecker) *MessageHandler {
	h := &MessageHandler{
		bot:           bot,
		conversations: conversations,
		moderator:     moderator,
		admins:        admins,
	}
	h.commands = []Command{
		{Command: "start", Description: "CmdStartDescription", PrivateOnly: true, Handler: h.HandleStart},
		{Command: "restart", PrivateOnly: true, Handler: h.HandleStart},
		{Command: "idea", PrivateOnly: true, Handler: h.HandleStart},
		{Command: "cancel", Description: "CmdCancelDescription", PrivateOnly: true, Handler: h.HandleCancel},
		{Command: "stats_today", AdminOnly: true, Handler: h.HandleStatsToday},
		{Command: "stats_week", AdminOnly: true, Handler: h.HandleStatsWeek},
		{Command: "attachments", AdminOnly: true, Handler: h.HandleAttachments},
	}
	return h
}

// GetCommand looks a command up by name.
func (h *MessageHandler) GetCommand(name string) (Command, bool) {
	for _, cmd := range h.commands {
		if cmd.Command == name {
			return cmd, true
		}
	}
	return Command{}, false
}
