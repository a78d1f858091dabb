// Package notify renders admin cards and talks to the admin chat.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"feedback-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries = 3
	defaultRetryWait  = 2 * time.Second
)

// TelegramNotifier sends and edits admin cards through the Bot API.
// Rate-limited calls are retried after the delay Telegram asks for.
type TelegramNotifier struct {
	bot        telegoapi.BotAPI
	maxRetries int
	retryWait  time.Duration
}

func NewTelegramNotifier(bot telegoapi.BotAPI) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, maxRetries: defaultMaxRetries, retryWait: defaultRetryWait}
}

// SendCard posts a card and returns its message ID.
func (n *TelegramNotifier) SendCard(ctx context.Context, chatID int64, text string, controls *telego.InlineKeyboardMarkup) (int, error) {
	params := tu.Message(tu.ID(chatID), text)
	if controls != nil {
		params = params.WithReplyMarkup(controls)
	}

	var msg *telego.Message
	err := n.withRetry(ctx, "sendMessage", func() error {
		var err error
		msg, err = n.bot.SendMessage(ctx, params)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to send card to chat %d: %w", chatID, err)
	}
	return msg.MessageID, nil
}

// EditCard replaces the text and controls of a sent card. An edit that
// changes nothing is reported by Telegram as an error and treated as success.
func (n *TelegramNotifier) EditCard(ctx context.Context, chatID int64, messageID int, text string, controls *telego.InlineKeyboardMarkup) error {
	params := &telego.EditMessageTextParams{
		ChatID:      tu.ID(chatID),
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: controls,
	}
	err := n.withRetry(ctx, "editMessageText", func() error {
		_, err := n.bot.EditMessageText(ctx, params)
		return err
	})
	if err != nil {
		if IsNotModified(err) {
			return nil
		}
		return fmt.Errorf("failed to edit card %d in chat %d: %w", messageID, chatID, err)
	}
	return nil
}

// Acknowledge answers a callback query, stopping the button spinner.
func (n *TelegramNotifier) Acknowledge(ctx context.Context, queryID, text string) error {
	params := tu.CallbackQuery(queryID)
	if text != "" {
		params = params.WithText(text)
	}
	if err := n.bot.AnswerCallbackQuery(ctx, params); err != nil {
		return fmt.Errorf("failed to answer callback query %s: %w", queryID, err)
	}
	return nil
}

// IsNotModified reports Telegram's "message is not modified" error.
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func (n *TelegramNotifier) withRetry(ctx context.Context, method string, call func() error) error {
	var lastErr error
	for attempt := 1; attempt <= n.maxRetries; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		errStr := lastErr.Error()
		if !strings.Contains(errStr, "Too Many Requests") && !strings.Contains(errStr, "429") {
			return lastErr
		}

		wait := n.retryWait
		if seconds, ok := parseRetryAfter(errStr); ok {
			wait = time.Duration(seconds) * time.Second
		}
		log.WithFields(log.Fields{"method": method, "attempt": attempt, "wait": wait}).Warn("Rate limited by Telegram")

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during rate limit wait: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", n.maxRetries, lastErr)
}

// parseRetryAfter extracts the retry delay from "... retry after N".
func parseRetryAfter(errorString string) (int, bool) {
	fields := strings.Fields(errorString)
	for i := len(fields) - 2; i >= 0; i-- {
		if fields[i] != "after" {
			continue
		}
		var retryAfter int
		if _, err := fmt.Sscan(strings.Trim(fields[i+1], ",)"), &retryAfter); err == nil && retryAfter > 0 {
			return retryAfter, true
		}
	}
	return 0, false
}
