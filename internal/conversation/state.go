package conversation

// IdentityMode is how the submitter chose to introduce themselves.
type IdentityMode string

const (
	IdentityAnonymous      IdentityMode = "anonymous"
	IdentityName           IdentityMode = "name"
	IdentityNameAndContact IdentityMode = "name_and_contact"
)

// Valid reports whether m is one of the known identity modes.
func (m IdentityMode) Valid() bool {
	switch m {
	case IdentityAnonymous, IdentityName, IdentityNameAndContact:
		return true
	}
	return false
}

// Relation is the submitter's relation to the church.
type Relation string

const (
	RelationMember    Relation = "member"
	RelationGuest     Relation = "guest"
	RelationVolunteer Relation = "volunteer"
	RelationOther     Relation = "other"
)

func (r Relation) Valid() bool {
	switch r {
	case RelationMember, RelationGuest, RelationVolunteer, RelationOther:
		return true
	}
	return false
}

// FeedbackType is the category picked by the submitter.
type FeedbackType string

const (
	TypeIdea     FeedbackType = "idea"
	TypeProblem  FeedbackType = "problem"
	TypeThanks   FeedbackType = "thanks"
	TypeQuestion FeedbackType = "question"
)

func (t FeedbackType) Valid() bool {
	switch t {
	case TypeIdea, TypeProblem, TypeThanks, TypeQuestion:
		return true
	}
	return false
}

// AttachmentKind is the platform-level kind of an uploaded file.
type AttachmentKind string

const (
	KindPhoto    AttachmentKind = "photo"
	KindDocument AttachmentKind = "document"
	KindOther    AttachmentKind = "other"
)

// AttachmentDraft is a file already stored in the object store but not yet
// linked to a feedback record.
type AttachmentDraft struct {
	Kind      AttachmentKind
	ObjectKey string
}

// Identity is what the submitter told about themselves.
// Name, Relation and Contact are empty for anonymous submissions.
type Identity struct {
	Mode     IdentityMode
	Name     string
	Relation Relation
	Contact  string
}

// Anonymous reports whether the identity must not be linked to a user record.
func (i Identity) Anonymous() bool {
	return i.Mode == IdentityAnonymous
}

// StateName is the persisted discriminator of a State.
type StateName string

const (
	StateIdle                  StateName = "idle"
	StateAskingIdentity        StateName = "asking_identity"
	StateAskingIdentityDetails StateName = "asking_identity_details"
	StateAskingType            StateName = "asking_type"
	StateAskingText            StateName = "asking_text"
	StateCollecting            StateName = "collecting_attachments"
)

// IdentityStep refines StateAskingIdentityDetails.
type IdentityStep string

const (
	StepName     IdentityStep = "name"
	StepRelation IdentityStep = "relation"
	StepContact  IdentityStep = "contact"
)

// State is one position of the feedback conversation. Every variant carries
// exactly the data collected so far, so a state can never hold a field that
// is meaningless for it.
type State interface {
	Name() StateName
	isState()
}

type Idle struct{}

type AskingIdentity struct{}

type AskingName struct {
	Mode IdentityMode
}

type AskingRelation struct {
	Mode IdentityMode
	Name string
}

type AskingContact struct {
	Mode     IdentityMode
	Name     string
	Relation Relation
}

type AskingType struct {
	Identity Identity
}

type AskingText struct {
	Identity Identity
	Type     FeedbackType
}

// CollectingAttachments is the last step: the text is known and files may be
// attached until the submitter presses send. Token identifies this submission
// attempt so a repeated send never creates a second record.
type CollectingAttachments struct {
	Identity    Identity
	Type        FeedbackType
	Text        string
	Attachments []AttachmentDraft
	Token       string
}

func (Idle) Name() StateName                  { return StateIdle }
func (AskingIdentity) Name() StateName        { return StateAskingIdentity }
func (AskingName) Name() StateName            { return StateAskingIdentityDetails }
func (AskingRelation) Name() StateName        { return StateAskingIdentityDetails }
func (AskingContact) Name() StateName         { return StateAskingIdentityDetails }
func (AskingType) Name() StateName            { return StateAskingType }
func (AskingText) Name() StateName            { return StateAskingText }
func (CollectingAttachments) Name() StateName { return StateCollecting }

func (Idle) isState()                  {}
func (AskingIdentity) isState()        {}
func (AskingName) isState()            {}
func (AskingRelation) isState()        {}
func (AskingContact) isState()         {}
func (AskingType) isState()            {}
func (AskingText) isState()            {}
func (CollectingAttachments) isState() {}

// Step returns the identity sub-step for identity detail states and "" otherwise.
func Step(s State) IdentityStep {
	switch s.(type) {
	case AskingName:
		return StepName
	case AskingRelation:
		return StepRelation
	case AskingContact:
		return StepContact
	}
	return ""
}

// Submission is everything the committer needs to persist one feedback.
type Submission struct {
	Identity    Identity
	Type        FeedbackType
	Text        string
	Attachments []AttachmentDraft
	Token       string
}
