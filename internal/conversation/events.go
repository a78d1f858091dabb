package conversation

// Event is an input to the state machine: either something the user did or
// the outcome of an effect the service has just run.
type Event interface {
	isEvent()
}

// Start is sent for /start, /restart and /idea.
type Start struct{}

// Cancel is sent for the /cancel command.
type Cancel struct{}

type IdentityChosen struct{ Mode IdentityMode }

type RelationChosen struct{ Relation Relation }

type TypeChosen struct{ Type FeedbackType }

// Text is a plain (non-command) text message, already trimmed.
type Text struct{ Body string }

// Media is a photo or document sent by the user.
type Media struct {
	Kind     AttachmentKind
	FileID   string
	UniqueID string
	MimeType string
}

type SendPressed struct{}

type CancelPressed struct{}

// AttachmentStored reports a finished upload.
type AttachmentStored struct{ Draft AttachmentDraft }

// AttachmentFailed reports a failed upload. The session is left untouched.
type AttachmentFailed struct{ Err error }

// Committed reports a persisted submission.
type Committed struct{ FeedbackID string }

// CommitFailed reports a failed submission. Send may be pressed again.
type CommitFailed struct{ Err error }

func (Start) isEvent()            {}
func (Cancel) isEvent()           {}
func (IdentityChosen) isEvent()   {}
func (RelationChosen) isEvent()   {}
func (TypeChosen) isEvent()       {}
func (Text) isEvent()             {}
func (Media) isEvent()            {}
func (SendPressed) isEvent()      {}
func (CancelPressed) isEvent()    {}
func (AttachmentStored) isEvent() {}
func (AttachmentFailed) isEvent() {}
func (Committed) isEvent()        {}
func (CommitFailed) isEvent()     {}
