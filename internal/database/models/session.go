package models

import "time"

// Session is the stored form of a conversation state. Only the fields that
// belong to State are meaningful; the rest stay empty.
type Session struct {
	Key             string              `bson:"_id"`
	State           string              `bson:"state"`
	IdentityStep    string              `bson:"identity_step,omitempty"`
	IdentityMode    string              `bson:"identity_mode,omitempty"`
	Name            string              `bson:"name,omitempty"`
	Relation        string              `bson:"relation,omitempty"`
	Contact         string              `bson:"contact,omitempty"`
	FeedbackType    string              `bson:"feedback_type,omitempty"`
	FeedbackText    string              `bson:"feedback_text,omitempty"`
	Attachments     []SessionAttachment `bson:"attachments,omitempty"`
	SubmissionToken string              `bson:"submission_token,omitempty"`
	UpdatedAt       time.Time           `bson:"updated_at"`
}

// SessionAttachment is a stored attachment draft.
type SessionAttachment struct {
	Type  string `bson:"type"`
	S3Key string `bson:"s3_key"`
}
