package attachments

import (
	"context"
	"fmt"

	"feedback-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// TelegramFiles resolves file IDs through the Bot API.
type TelegramFiles struct {
	bot telegoapi.BotAPI
}

func NewTelegramFiles(bot telegoapi.BotAPI) *TelegramFiles {
	return &TelegramFiles{bot: bot}
}

func (t *TelegramFiles) DownloadURL(ctx context.Context, fileID string) (string, error) {
	file, err := t.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", err
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("file %s has no download path", fileID)
	}
	return t.bot.FileDownloadURL(file.FilePath), nil
}
