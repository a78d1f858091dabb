package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feedback-bot/internal/conversation"
	"feedback-bot/internal/database/models"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionCollectionName = "sessions"

// MongoSessionStore keeps one document per conversation key.
type MongoSessionStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoSessionStore creates a session store on the given database.
func NewMongoSessionStore(db *mongo.Database) *MongoSessionStore {
	return &MongoSessionStore{
		collection: db.Collection(sessionCollectionName),
		now:        time.Now,
	}
}

// Get loads the state stored under key. A missing document reports false.
// A document that does not describe a valid state is treated as Idle.
func (s *MongoSessionStore) Get(ctx context.Context, key string) (conversation.State, bool, error) {
	var doc models.Session
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session %s: %w", key, err)
	}

	state, err := DecodeSession(doc)
	if err != nil {
		log.WithError(err).WithField("conversation", key).Warn("Discarding inconsistent session")
		return conversation.Idle{}, true, nil
	}
	return state, true, nil
}

// Put replaces the session stored under key.
func (s *MongoSessionStore) Put(ctx context.Context, key string, state conversation.State) error {
	doc := EncodeSession(key, state)
	doc.UpdatedAt = s.now()

	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", key, err)
	}
	return nil
}

// Delete removes the session stored under key. Deleting a missing session is not an error.
func (s *MongoSessionStore) Delete(ctx context.Context, key string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", key, err)
	}
	return nil
}

// EncodeSession flattens a state into its stored form.
func EncodeSession(key string, state conversation.State) models.Session {
	doc := models.Session{Key: key, State: string(state.Name())}

	setIdentity := func(id conversation.Identity) {
		doc.IdentityMode = string(id.Mode)
		doc.Name = id.Name
		doc.Relation = string(id.Relation)
		doc.Contact = id.Contact
	}

	switch s := state.(type) {
	case conversation.AskingName:
		doc.IdentityStep = string(conversation.StepName)
		doc.IdentityMode = string(s.Mode)
	case conversation.AskingRelation:
		doc.IdentityStep = string(conversation.StepRelation)
		doc.IdentityMode = string(s.Mode)
		doc.Name = s.Name
	case conversation.AskingContact:
		doc.IdentityStep = string(conversation.StepContact)
		doc.IdentityMode = string(s.Mode)
		doc.Name = s.Name
		doc.Relation = string(s.Relation)
	case conversation.AskingType:
		setIdentity(s.Identity)
	case conversation.AskingText:
		setIdentity(s.Identity)
		doc.FeedbackType = string(s.Type)
	case conversation.CollectingAttachments:
		setIdentity(s.Identity)
		doc.FeedbackType = string(s.Type)
		doc.FeedbackText = s.Text
		doc.SubmissionToken = s.Token
		for _, a := range s.Attachments {
			doc.Attachments = append(doc.Attachments, models.SessionAttachment{Type: string(a.Kind), S3Key: a.ObjectKey})
		}
	}
	return doc
}

// DecodeSession rebuilds a state from its stored form, checking that every
// field the state needs is present and valid.
func DecodeSession(doc models.Session) (conversation.State, error) {
	mode := conversation.IdentityMode(doc.IdentityMode)
	identity := conversation.Identity{
		Mode:     mode,
		Name:     doc.Name,
		Relation: conversation.Relation(doc.Relation),
		Contact:  doc.Contact,
	}
	feedbackType := conversation.FeedbackType(doc.FeedbackType)

	switch conversation.StateName(doc.State) {
	case conversation.StateIdle, "":
		return conversation.Idle{}, nil

	case conversation.StateAskingIdentity:
		return conversation.AskingIdentity{}, nil

	case conversation.StateAskingIdentityDetails:
		if mode != conversation.IdentityName && mode != conversation.IdentityNameAndContact {
			return nil, fmt.Errorf("identity details with mode %q", doc.IdentityMode)
		}
		switch conversation.IdentityStep(doc.IdentityStep) {
		case conversation.StepName:
			return conversation.AskingName{Mode: mode}, nil
		case conversation.StepRelation:
			if doc.Name == "" {
				return nil, errors.New("relation step without name")
			}
			return conversation.AskingRelation{Mode: mode, Name: doc.Name}, nil
		case conversation.StepContact:
			if doc.Name == "" || !identity.Relation.Valid() || mode != conversation.IdentityNameAndContact {
				return nil, errors.New("contact step without name, relation or contact mode")
			}
			return conversation.AskingContact{Mode: mode, Name: doc.Name, Relation: identity.Relation}, nil
		}
		return nil, fmt.Errorf("unknown identity step %q", doc.IdentityStep)

	case conversation.StateAskingType:
		if err := validateIdentity(identity); err != nil {
			return nil, err
		}
		return conversation.AskingType{Identity: identity}, nil

	case conversation.StateAskingText:
		if err := validateIdentity(identity); err != nil {
			return nil, err
		}
		if !feedbackType.Valid() {
			return nil, fmt.Errorf("unknown feedback type %q", doc.FeedbackType)
		}
		return conversation.AskingText{Identity: identity, Type: feedbackType}, nil

	case conversation.StateCollecting:
		if err := validateIdentity(identity); err != nil {
			return nil, err
		}
		if !feedbackType.Valid() {
			return nil, fmt.Errorf("unknown feedback type %q", doc.FeedbackType)
		}
		if doc.FeedbackText == "" || doc.SubmissionToken == "" {
			return nil, errors.New("collecting attachments without text or submission token")
		}
		var drafts []conversation.AttachmentDraft
		for _, a := range doc.Attachments {
			if a.S3Key == "" {
				return nil, errors.New("attachment without object key")
			}
			drafts = append(drafts, conversation.AttachmentDraft{Kind: conversation.AttachmentKind(a.Type), ObjectKey: a.S3Key})
		}
		return conversation.CollectingAttachments{
			Identity:    identity,
			Type:        feedbackType,
			Text:        doc.FeedbackText,
			Attachments: drafts,
			Token:       doc.SubmissionToken,
		}, nil
	}

	return nil, fmt.Errorf("unknown state %q", doc.State)
}

func validateIdentity(id conversation.Identity) error {
	if !id.Mode.Valid() {
		return fmt.Errorf("unknown identity mode %q", id.Mode)
	}
	if id.Anonymous() {
		return nil
	}
	if id.Name == "" || !id.Relation.Valid() {
		return errors.New("named identity without name or relation")
	}
	if id.Mode == conversation.IdentityNameAndContact && id.Contact == "" {
		return errors.New("contact identity without contact")
	}
	return nil
}
