package notify

import (
	"errors"
	"fmt"
	"strings"

	"feedback-bot/internal/database/models"

	"github.com/google/uuid"
)

// Callback data is "<prefix>|<field>|<field>...". The separator may not
// appear inside a field and the whole string must fit Telegram's 64 bytes.
const (
	Separator             = "|"
	MaxCallbackDataLength = 64
)

// Callback prefixes.
const (
	PrefixIdentity    = "id"
	PrefixRelation    = "rel"
	PrefixType        = "type"
	PrefixAttachments = "att"
	PrefixStatus      = "fb"
)

// Values of the attachment controls.
const (
	ControlSend   = "send"
	ControlCancel = "cancel"
)

var ErrInvalidCallback = errors.New("invalid callback data")

// Encode builds callback data from a prefix and fields.
func Encode(prefix string, fields ...string) (string, error) {
	parts := append([]string{prefix}, fields...)
	for _, p := range parts {
		if p == "" || strings.Contains(p, Separator) {
			return "", fmt.Errorf("%w: bad field %q", ErrInvalidCallback, p)
		}
	}
	data := strings.Join(parts, Separator)
	if len(data) > MaxCallbackDataLength {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidCallback, len(data))
	}
	return data, nil
}

// Decode splits callback data into its prefix and fields.
func Decode(data string) (string, []string, error) {
	if data == "" || len(data) > MaxCallbackDataLength {
		return "", nil, ErrInvalidCallback
	}
	parts := strings.Split(data, Separator)
	for _, p := range parts {
		if p == "" {
			return "", nil, ErrInvalidCallback
		}
	}
	return parts[0], parts[1:], nil
}

// Choice is a single-value button pressed during the conversation.
type Choice struct {
	Prefix string
	Value  string
}

// FormatChoice encodes a conversation button. Prefixes and values are
// package constants, so an encoding error is a programming error.
func FormatChoice(prefix, value string) string {
	data, err := Encode(prefix, value)
	if err != nil {
		panic(err)
	}
	return data
}

func ParseChoice(data string) (Choice, error) {
	prefix, fields, err := Decode(data)
	if err != nil {
		return Choice{}, err
	}
	if len(fields) != 1 {
		return Choice{}, fmt.Errorf("%w: want 1 field, got %d", ErrInvalidCallback, len(fields))
	}
	return Choice{Prefix: prefix, Value: fields[0]}, nil
}

// StatusAction is an admin status button on a feedback card.
type StatusAction struct {
	FeedbackID uuid.UUID
	Status     models.FeedbackStatus
}

func FormatStatusAction(a StatusAction) string {
	data, err := Encode(PrefixStatus, a.FeedbackID.String(), string(a.Status))
	if err != nil {
		panic(err)
	}
	return data
}

// ParseStatusAction accepts only known target statuses; "new" is not a target.
func ParseStatusAction(data string) (StatusAction, error) {
	prefix, fields, err := Decode(data)
	if err != nil {
		return StatusAction{}, err
	}
	if prefix != PrefixStatus || len(fields) != 2 {
		return StatusAction{}, ErrInvalidCallback
	}
	id, err := uuid.Parse(fields[0])
	if err != nil {
		return StatusAction{}, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}
	status := models.FeedbackStatus(fields[1])
	if !status.Valid() || status == models.StatusNew {
		return StatusAction{}, fmt.Errorf("%w: status %q", ErrInvalidCallback, fields[1])
	}
	return StatusAction{FeedbackID: id, Status: status}, nil
}
