// Package attachments turns media sent by users into stored attachment drafts.
package attachments

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"feedback-bot/internal/conversation"
	"feedback-bot/internal/metrics"
)

// KeyPrefix is the first segment of every attachment object key.
const KeyPrefix = "feedback"

// FileResolver turns a platform file ID into a download URL.
type FileResolver interface {
	DownloadURL(ctx context.Context, fileID string) (string, error)
}

// Uploader copies a remote file into the object store.
type Uploader interface {
	UploadFromURL(ctx context.Context, url, key, contentType string) error
}

// Collector downloads a user's file from Telegram and uploads it to the object store.
type Collector struct {
	files   FileResolver
	store   Uploader
	timeout time.Duration
	now     func() time.Time
}

// NewCollector creates a collector. Each upload is bounded by timeout.
func NewCollector(files FileResolver, store Uploader, timeout time.Duration) *Collector {
	return &Collector{files: files, store: store, timeout: timeout, now: time.Now}
}

// Accept stores one media file and returns its draft.
// ownerID is the Telegram user ID, zero when unknown.
func (c *Collector) Accept(ctx context.Context, ownerID int64, media conversation.Media) (conversation.AttachmentDraft, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	url, err := c.files.DownloadURL(ctx, media.FileID)
	if err != nil {
		metrics.AttachmentUploads.WithLabelValues("resolve_failed").Inc()
		return conversation.AttachmentDraft{}, fmt.Errorf("failed to resolve file %s: %w", media.FileID, err)
	}

	key := c.objectKey(ownerID, media)
	if err := c.store.UploadFromURL(ctx, url, key, ContentType(media)); err != nil {
		metrics.AttachmentUploads.WithLabelValues("upload_failed").Inc()
		return conversation.AttachmentDraft{}, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	metrics.AttachmentUploads.WithLabelValues("ok").Inc()
	return conversation.AttachmentDraft{Kind: media.Kind, ObjectKey: key}, nil
}

func (c *Collector) objectKey(ownerID int64, media conversation.Media) string {
	owner := "anon"
	if ownerID != 0 {
		owner = strconv.FormatInt(ownerID, 10)
	}
	id := media.UniqueID
	if id == "" {
		id = media.FileID
	}
	return BuildKey(KeyPrefix, owner, fmt.Sprintf("%d-%s", c.now().UnixMilli(), id))
}

// BuildKey joins key segments with "/", dropping empty segments and stray slashes.
func BuildKey(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}

// ContentType is image/jpeg for photos and the declared MIME type otherwise.
func ContentType(media conversation.Media) string {
	if media.Kind == conversation.KindPhoto {
		return "image/jpeg"
	}
	return media.MimeType
}
