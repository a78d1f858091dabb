package handlers

import (
	"context"

	"feedback-bot/internal/conversation"
	"feedback-bot/internal/moderation"
)

// ConversationService runs conversation events for one user.
type ConversationService interface {
	Handle(ctx context.Context, conv conversation.Conversation, events ...conversation.Event) ([]conversation.Reply, error)
}

// Moderator serves the admin chat: status buttons and reports.
type Moderator interface {
	ApplyStatusChange(ctx context.Context, a moderation.Action) error
	Stats(ctx context.Context, period moderation.Period) (string, error)
	AttachmentLinks(ctx context.Context, rawID string) (string, error)
}
