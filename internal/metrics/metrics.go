// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	UpdatesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedbackbot_updates_processed_total",
		Help: "Telegram updates processed, by kind.",
	}, []string{"kind"})

	UpdateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedbackbot_update_duration_seconds",
		Help:    "Time spent processing one Telegram update.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	ConversationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedbackbot_conversation_events_total",
		Help: "Conversation events applied, by event and resulting state.",
	}, []string{"event", "from", "to"})

	AttachmentUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedbackbot_attachment_uploads_total",
		Help: "Attachment uploads to the object store, by result.",
	}, []string{"result"})

	FeedbackCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedbackbot_feedback_committed_total",
		Help: "Feedback submissions persisted, by type.",
	}, []string{"type"})

	StatusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedbackbot_status_changes_total",
		Help: "Moderation status changes, by target status.",
	}, []string{"status"})

	PanicsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedbackbot_panics_recovered_total",
		Help: "Panics recovered while processing updates.",
	})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Metrics server shutdown failed")
		}
	}()

	log.Infof("Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
