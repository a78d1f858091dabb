package conversation

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"feedback-bot/internal/metrics"

	log "github.com/sirupsen/logrus"
)

// SessionStore persists conversation state between updates.
// Get reports false when no session exists for the key.
type SessionStore interface {
	Get(ctx context.Context, key string) (State, bool, error)
	Put(ctx context.Context, key string, state State) error
	Delete(ctx context.Context, key string) error
}

// AttachmentStore uploads a media file and returns its draft.
type AttachmentStore interface {
	Accept(ctx context.Context, ownerID int64, media Media) (AttachmentDraft, error)
}

// Committer persists a finished submission and returns the feedback ID.
type Committer interface {
	Commit(ctx context.Context, req CommitRequest) (string, error)
}

// CommitRequest is a submission together with who submitted it.
type CommitRequest struct {
	ConversationKey string
	UserID          int64
	Submission      Submission
}

// Conversation identifies one user talking to the bot in one chat.
type Conversation struct {
	ChatID int64
	UserID int64
}

// Key is the session key of the conversation.
func (c Conversation) Key() string {
	return fmt.Sprintf("chat:%d:user:%d", c.ChatID, c.UserID)
}

// SaveTimeout bounds persisting the session after the events ran. It is
// counted from the end of the I/O effects, not from the update start.
const SaveTimeout = 5 * time.Second

// Service drives the state machine for incoming events: it loads the
// session, runs transitions and their I/O effects, and saves the result.
// Updates for the same conversation are serialized.
type Service struct {
	machine     *Machine
	sessions    SessionStore
	attachments AttachmentStore
	committer   Committer
	locks       *keyedMutex
}

// NewService creates a conversation service.
func NewService(machine *Machine, sessions SessionStore, attachments AttachmentStore, committer Committer) *Service {
	return &Service{
		machine:     machine,
		sessions:    sessions,
		attachments: attachments,
		committer:   committer,
		locks:       newKeyedMutex(),
	}
}

// Handle applies events in order against the stored session and returns the
// replies to send. Consecutive identical replies are collapsed, which keeps
// an album from producing one "saved" message per photo.
func (s *Service) Handle(ctx context.Context, conv Conversation, events ...Event) ([]Reply, error) {
	key := conv.Key()
	unlock := s.locks.Lock(key)
	defer unlock()

	state, found, err := s.sessions.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", key, err)
	}
	if !found {
		state = Idle{}
	}
	initial := state.Name()

	var replies []Reply
	queue := append([]Event(nil), events...)
	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]

		from := state.Name()
		next, effects := s.machine.Transition(state, ev)
		state = next
		metrics.ConversationEvents.WithLabelValues(eventName(ev), string(from), string(state.Name())).Inc()

		for _, eff := range effects {
			switch e := eff.(type) {
			case Reply:
				replies = append(replies, e)
			case StoreAttachment:
				queue = append([]Event{s.storeAttachment(ctx, conv, e)}, queue...)
			case Commit:
				queue = append([]Event{s.commit(ctx, conv, e)}, queue...)
			}
		}
	}

	// an upload or commit may have used up the update's deadline; the
	// outcome must still be persisted
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SaveTimeout)
	defer cancel()
	if err := s.save(saveCtx, key, state); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"conversation": key,
		"from":         initial,
		"state":        state.Name(),
		"events":       len(events),
	}).Debug("Conversation updated")
	return collapseReplies(replies), nil
}

func (s *Service) storeAttachment(ctx context.Context, conv Conversation, eff StoreAttachment) Event {
	draft, err := s.attachments.Accept(ctx, conv.UserID, eff.Media)
	if err != nil {
		log.WithError(err).WithField("conversation", conv.Key()).Warn("Failed to store attachment")
		return AttachmentFailed{Err: err}
	}
	return AttachmentStored{Draft: draft}
}

func (s *Service) commit(ctx context.Context, conv Conversation, eff Commit) Event {
	id, err := s.committer.Commit(ctx, CommitRequest{
		ConversationKey: conv.Key(),
		UserID:          conv.UserID,
		Submission:      eff.Submission,
	})
	if err != nil {
		log.WithError(err).WithField("conversation", conv.Key()).Error("Failed to commit feedback")
		return CommitFailed{Err: err}
	}
	log.WithFields(log.Fields{"conversation": conv.Key(), "feedback_id": id}).Info("Feedback committed")
	return Committed{FeedbackID: id}
}

func (s *Service) save(ctx context.Context, key string, state State) error {
	if _, idle := state.(Idle); idle {
		if err := s.sessions.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to reset session %s: %w", key, err)
		}
		return nil
	}
	if err := s.sessions.Put(ctx, key, state); err != nil {
		return fmt.Errorf("failed to save session %s: %w", key, err)
	}
	return nil
}

func collapseReplies(replies []Reply) []Reply {
	out := make([]Reply, 0, len(replies))
	for _, r := range replies {
		if n := len(out); n > 0 && reflect.DeepEqual(out[n-1], r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func eventName(ev Event) string {
	return reflect.TypeOf(ev).Name()
}
