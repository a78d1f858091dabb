package conversation

// Keyboard names the reply markup that accompanies a Reply. Rendering the
// actual buttons is left to the transport.
type Keyboard string

const (
	KeyboardNone        Keyboard = ""
	KeyboardIdentity    Keyboard = "identity"
	KeyboardRelation    Keyboard = "relation"
	KeyboardType        Keyboard = "type"
	KeyboardAttachments Keyboard = "attachments"
	KeyboardRemove      Keyboard = "remove"
)

// Message IDs used in replies. They match the locale catalog.
const (
	MsgStart             = "MsgStart"
	MsgAnonymousSelected = "MsgAnonymousSelected"
	MsgAskName           = "MsgAskName"
	MsgThanksName        = "MsgThanksName"
	MsgAskContact        = "MsgAskContact"
	MsgAskType           = "MsgAskType"
	MsgAskText           = "MsgAskText"
	MsgAfterText         = "MsgAfterText"
	MsgAttachmentSaved   = "MsgAttachmentSaved"
	MsgAttachmentFailed  = "MsgAttachmentFailed"
	MsgAttachmentLimit   = "MsgAttachmentLimit"
	MsgFinalThankYou     = "MsgFinalThankYou"
	MsgSubmitFailed      = "MsgSubmitFailed"
	MsgCancelled         = "MsgCancelled"
	MsgUseStart          = "MsgUseStart"
	MsgRestartHint       = "MsgRestartHint"
	MsgChooseFromButtons = "MsgChooseFromButtons"
	MsgPressSendOrCancel = "MsgPressSendOrCancel"
	MsgSendTextFirst     = "MsgSendTextFirst"
)

// Effect is work requested by a transition.
type Effect interface {
	isEffect()
}

// Reply asks the transport to send a localized message to the user.
type Reply struct {
	MessageID string
	Data      map[string]interface{}
	Keyboard  Keyboard
}

// StoreAttachment asks the service to upload a media file.
// The outcome comes back as AttachmentStored or AttachmentFailed.
type StoreAttachment struct {
	Media Media
}

// Commit asks the service to persist the submission.
// The outcome comes back as Committed or CommitFailed.
type Commit struct {
	Submission Submission
}

func (Reply) isEffect()           {}
func (StoreAttachment) isEffect() {}
func (Commit) isEffect()          {}

func reply(msgID string, kb Keyboard) Reply {
	return Reply{MessageID: msgID, Keyboard: kb}
}
