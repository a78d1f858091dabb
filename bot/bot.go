// Package bot runs the Telegram update loop.
package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"feedback-bot/internal/metrics"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

// DefaultUpdateTimeout bounds the processing of one update.
const DefaultUpdateTimeout = 60 * time.Second

// UpdateHandler processes the update kinds the bot cares about.
type UpdateHandler interface {
	HandleMessage(ctx context.Context, message telego.Message) error
	HandleCallbackQuery(ctx context.Context, query telego.CallbackQuery) error
	SetupCommands(ctx context.Context) error
}

// AlbumCollector buffers album parts until the album is complete.
type AlbumCollector interface {
	Add(message telego.Message)
	Shutdown()
}

// Bot reads updates and processes each one in its own goroutine.
type Bot struct {
	updates     <-chan telego.Update
	handler     UpdateHandler
	albums      AlbumCollector
	ratelimiter ratelimit.Limiter
	timeout     time.Duration
}

// BotDeps holds the dependencies required by the Bot.
type BotDeps struct {
	Updates   <-chan telego.Update
	Handler   UpdateHandler
	Albums    AlbumCollector
	RateLimit int // updates per second
	Timeout   time.Duration
}

// New creates a Bot from its dependencies.
func New(deps BotDeps) (*Bot, error) {
	if deps.Updates == nil {
		return nil, errors.New("updates channel cannot be nil")
	}
	if deps.Handler == nil {
		return nil, errors.New("update handler cannot be nil")
	}
	if deps.Albums == nil {
		return nil, errors.New("album collector cannot be nil")
	}
	if deps.RateLimit <= 0 {
		deps.RateLimit = 20
	}
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultUpdateTimeout
	}
	return &Bot{
		updates:     deps.Updates,
		handler:     deps.Handler,
		albums:      deps.Albums,
		ratelimiter: ratelimit.New(deps.RateLimit),
		timeout:     deps.Timeout,
	}, nil
}

// Start registers the command menu and processes updates until ctx is done
// or the updates channel closes. It waits for in-flight updates and
// buffered albums before returning.
func (b *Bot) Start(ctx context.Context) {
	if err := b.handler.SetupCommands(ctx); err != nil {
		log.WithError(err).Warn("Failed to set up bot commands")
	}
	log.Info("Listening for updates...")

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		b.albums.Shutdown()
		log.Info("All update processing finished")
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Context done, stopping update processing...")
			return
		case update, ok := <-b.updates:
			if !ok {
				log.Info("Updates channel closed")
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}

func updateKind(update telego.Update) string {
	switch {
	case update.Message != nil && update.Message.MediaGroupID != "":
		return "album_part"
	case update.Message != nil:
		return "message"
	case update.CallbackQuery != nil:
		return "callback_query"
	}
	return "other"
}

// processUpdate routes one update. Panics and errors are reported, never
// propagated.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	b.ratelimiter.Take()

	kind := updateKind(update)
	started := time.Now()
	defer func() {
		metrics.UpdatesProcessed.WithLabelValues(kind).Inc()
		metrics.UpdateDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
	}()

	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.Inc()
			log.WithFields(log.Fields{"update_id": update.UpdateID, "panic": r}).Errorf("Panic recovered in processUpdate\n%s", debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)
		}
	}()

	processingCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var err error
	switch kind {
	case "album_part":
		b.albums.Add(*update.Message)
	case "message":
		if update.Message.From == nil {
			log.WithField("chat_id", update.Message.Chat.ID).Debug("Ignoring message without sender")
			return
		}
		err = b.handler.HandleMessage(processingCtx, *update.Message)
	case "callback_query":
		err = b.handler.HandleCallbackQuery(processingCtx, *update.CallbackQuery)
	default:
		log.WithField("update_id", update.UpdateID).Debug("Ignoring unhandled update type")
	}

	if err != nil {
		log.WithError(err).WithFields(log.Fields{"update_id": update.UpdateID, "kind": kind}).Error("Update handler failed")
		sentry.CaptureException(fmt.Errorf("%s update %d: %w", kind, update.UpdateID, err))
	}
}
