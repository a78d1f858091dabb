package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	telegoBot "feedback-bot/bot"
	"feedback-bot/internal/attachments"
	"feedback-bot/internal/auth"
	"feedback-bot/internal/config"
	"feedback-bot/internal/conversation"
	"feedback-bot/internal/database"
	"feedback-bot/internal/handlers"
	"feedback-bot/internal/locales"
	"feedback-bot/internal/mediagroups"
	"feedback-bot/internal/metrics"
	"feedback-bot/internal/moderation"
	"feedback-bot/internal/notify"
	"feedback-bot/internal/objectstore"
	"feedback-bot/internal/submission"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot with long polling",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", true, "Migrate the relational schema before starting")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if cfg.Debug && logLevel == "info" {
		log.SetLevel(log.DebugLevel)
	}

	locales.Init(cfg.DefaultLanguage)

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	defer sentry.Flush(2 * time.Second)

	mongoClient, mongoDB, err := database.ConnectDB(ctx, cfg.MongoDBURI, cfg.MongoDBDatabase)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.WithError(err).Error("Error disconnecting from MongoDB")
			sentry.CaptureException(err)
		} else {
			log.Info("Disconnected from MongoDB")
		}
	}()

	gormDB, err := database.OpenPostgres(cfg.DatabaseURL, cfg.Debug)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	if migrateOnStart {
		if err := database.Migrate(gormDB); err != nil {
			return err
		}
	}

	store, err := objectstore.New(ctx, objectstore.Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretKey,
	})
	if err != nil {
		sentry.CaptureException(err)
		return err
	}

	var api *telego.Bot
	if cfg.Debug {
		api, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		api, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, true))
	}
	if err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("failed to create telego bot: %w", err)
	}
	me, err := api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach Telegram: %w", err)
	}
	log.WithField("username", me.Username).Info("Authorized on Telegram")

	admins, err := auth.NewAdminChecker(cfg.AdminChatID)
	if err != nil {
		return err
	}

	repo := database.NewGormFeedbackRepository(gormDB)
	notifier := notify.NewTelegramNotifier(api)
	collector := attachments.NewCollector(attachments.NewTelegramFiles(api), store, cfg.UploadTimeout)
	committer := submission.NewCommitter(repo, notifier, cfg.AdminChatID)
	conversations := conversation.NewService(
		conversation.NewMachine(cfg.MaxAttachments),
		database.NewMongoSessionStore(mongoDB),
		collector,
		committer,
	)
	moderator := moderation.NewProtocol(repo, notifier, store, admins)
	handler := handlers.NewMessageHandler(api, conversations, moderator, admins)
	albums := mediagroups.NewManager(handler.HandleMediaGroup, mediagroups.DefaultProcessDelay, mediagroups.DefaultMaxGroupSize, cfg.UpdateTimeout)

	updates, err := api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	appBot, err := telegoBot.New(telegoBot.BotDeps{
		Updates:   updates,
		Handler:   handler,
		Albums:    albums,
		RateLimit: cfg.RateLimit,
		Timeout:   cfg.UpdateTimeout,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.MetricsAddr) })
	}
	g.Go(func() error {
		appBot.Start(gctx)
		return nil
	})

	err = g.Wait()
	log.Info("Bot shutdown complete")
	return err
}
