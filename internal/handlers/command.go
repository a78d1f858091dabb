package handlers

import (
	"context"
	"fmt"
	"strings"

	"feedback-bot/internal/conversation"
	"feedback-bot/internal/locales"
	"feedback-bot/internal/moderation"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// parseCommand splits "/cmd@bot args" into "cmd" and "args".
func parseCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	name, args, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), strings.TrimSpace(args)
}

// HandleCommand routes a command message. Admin-only commands are silently
// ignored outside the admin chat, and conversation commands sent to a group
// get a hint to write privately.
func (h *MessageHandler) HandleCommand(ctx context.Context, message telego.Message) error {
	name, args := parseCommand(message.Text)
	logger := log.WithFields(log.Fields{"command": name, "chat_id": message.Chat.ID})

	cmd, ok := h.GetCommand(name)
	if !ok {
		logger.Debug("Unknown command")
		if message.Chat.Type == telego.ChatTypePrivate {
			h.sendText(ctx, message.Chat.ID, locales.GetMessage(getLocalizer(message.From), "MsgErrorUnknownCommand", nil, nil))
		}
		return nil
	}
	if cmd.AdminOnly && !h.admins.IsAdminChat(message.Chat.ID) {
		logger.Warn("Admin command outside the admin chat")
		return nil
	}
	if cmd.PrivateOnly && message.Chat.Type != telego.ChatTypePrivate {
		logger.Debug("Conversation command outside a private chat")
		h.sendText(ctx, message.Chat.ID, locales.GetMessage(getLocalizer(message.From), "MsgPrivateOnly", nil, nil))
		return nil
	}

	if err := cmd.Handler(ctx, message, args); err != nil {
		return fmt.Errorf("/%s: %w", name, err)
	}
	return nil
}

// HandleStart begins a new conversation, dropping any unfinished one.
func (h *MessageHandler) HandleStart(ctx context.Context, message telego.Message, _ string) error {
	return h.dispatch(ctx, conversationOf(message), getLocalizer(message.From), conversation.Start{})
}

// HandleCancel abandons the current conversation.
func (h *MessageHandler) HandleCancel(ctx context.Context, message telego.Message, _ string) error {
	return h.dispatch(ctx, conversationOf(message), getLocalizer(message.From), conversation.Cancel{})
}

func (h *MessageHandler) HandleStatsToday(ctx context.Context, message telego.Message, _ string) error {
	return h.sendStats(ctx, message.Chat.ID, moderation.PeriodToday)
}

func (h *MessageHandler) HandleStatsWeek(ctx context.Context, message telego.Message, _ string) error {
	return h.sendStats(ctx, message.Chat.ID, moderation.PeriodWeek)
}

func (h *MessageHandler) sendStats(ctx context.Context, chatID int64, period moderation.Period) error {
	text, err := h.moderator.Stats(ctx, period)
	if err != nil {
		return h.sendError(ctx, chatID, locales.DefaultLocalizer(), err)
	}
	h.sendText(ctx, chatID, text)
	return nil
}

// HandleAttachments replies with signed links to the files of one feedback.
func (h *MessageHandler) HandleAttachments(ctx context.Context, message telego.Message, args string) error {
	text, err := h.moderator.AttachmentLinks(ctx, args)
	if err != nil {
		return h.sendError(ctx, message.Chat.ID, locales.DefaultLocalizer(), err)
	}
	h.sendText(ctx, message.Chat.ID, text)
	return nil
}

// SetupCommands registers the public commands in the bot menu.
func (h *MessageHandler) SetupCommands(ctx context.Context) error {
	loc := locales.DefaultLocalizer()
	var cmds []telego.BotCommand
	for _, cmd := range h.commands {
		if cmd.Description == "" || cmd.AdminOnly {
			continue
		}
		cmds = append(cmds, telego.BotCommand{
			Command:     cmd.Command,
			Description: locales.GetMessage(loc, cmd.Description, nil, nil),
		})
	}
	if err := h.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: cmds}); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	log.WithField("count", len(cmds)).Info("Bot commands set")
	return nil
}
