package conversation

import (
	"strings"

	"github.com/google/uuid"
)

// MaxIdentityFieldLength caps names and contacts, counted in runes.
const MaxIdentityFieldLength = 200

// Machine holds the transition rules of the feedback conversation.
// Transition has no side effects besides calling NewToken.
type Machine struct {
	// MaxAttachments caps drafts per submission. Zero means unlimited.
	MaxAttachments int
	// NewToken generates submission tokens.
	NewToken func() string
}

// NewMachine returns a Machine generating random UUID submission tokens.
func NewMachine(maxAttachments int) *Machine {
	return &Machine{
		MaxAttachments: maxAttachments,
		NewToken:       func() string { return uuid.NewString() },
	}
}

// Transition computes the next state and the effects to run for one event.
// Events that do not apply to the current state leave it unchanged and at
// most produce a nudge, so replaying an event against an already advanced
// state is harmless.
func (m *Machine) Transition(state State, event Event) (State, []Effect) {
	if state == nil {
		state = Idle{}
	}

	switch ev := event.(type) {
	case Start:
		return AskingIdentity{}, []Effect{reply(MsgStart, KeyboardIdentity)}

	case Cancel, CancelPressed:
		return Idle{}, []Effect{reply(MsgCancelled, KeyboardRemove)}

	case IdentityChosen:
		if _, ok := state.(AskingIdentity); !ok || !ev.Mode.Valid() {
			return state, []Effect{reply(MsgRestartHint, KeyboardNone)}
		}
		if ev.Mode == IdentityAnonymous {
			return AskingType{Identity: Identity{Mode: IdentityAnonymous}}, []Effect{
				reply(MsgAnonymousSelected, KeyboardNone),
				reply(MsgAskType, KeyboardType),
			}
		}
		return AskingName{Mode: ev.Mode}, []Effect{reply(MsgAskName, KeyboardNone)}

	case RelationChosen:
		s, ok := state.(AskingRelation)
		if !ok || !ev.Relation.Valid() {
			return state, []Effect{reply(MsgRestartHint, KeyboardNone)}
		}
		if s.Mode == IdentityNameAndContact {
			return AskingContact{Mode: s.Mode, Name: s.Name, Relation: ev.Relation},
				[]Effect{reply(MsgAskContact, KeyboardNone)}
		}
		return AskingType{Identity: Identity{Mode: s.Mode, Name: s.Name, Relation: ev.Relation}},
			[]Effect{reply(MsgAskType, KeyboardType)}

	case TypeChosen:
		s, ok := state.(AskingType)
		if !ok || !ev.Type.Valid() {
			return state, []Effect{reply(MsgRestartHint, KeyboardNone)}
		}
		return AskingText{Identity: s.Identity, Type: ev.Type}, []Effect{reply(MsgAskText, KeyboardNone)}

	case Text:
		return m.onText(state, strings.TrimSpace(ev.Body))

	case Media:
		return m.onMedia(state, ev)

	case SendPressed:
		s, ok := state.(CollectingAttachments)
		if !ok {
			return state, []Effect{reply(MsgRestartHint, KeyboardNone)}
		}
		return state, []Effect{Commit{Submission: Submission{
			Identity:    s.Identity,
			Type:        s.Type,
			Text:        s.Text,
			Attachments: append([]AttachmentDraft(nil), s.Attachments...),
			Token:       s.Token,
		}}}

	case AttachmentStored:
		s, ok := state.(CollectingAttachments)
		if !ok {
			return state, nil
		}
		drafts := make([]AttachmentDraft, 0, len(s.Attachments)+1)
		drafts = append(drafts, s.Attachments...)
		s.Attachments = append(drafts, ev.Draft)
		return s, []Effect{reply(MsgAttachmentSaved, KeyboardAttachments)}

	case AttachmentFailed:
		if _, ok := state.(CollectingAttachments); !ok {
			return state, nil
		}
		return state, []Effect{reply(MsgAttachmentFailed, KeyboardAttachments)}

	case Committed:
		if _, ok := state.(CollectingAttachments); !ok {
			return state, nil
		}
		return Idle{}, []Effect{reply(MsgFinalThankYou, KeyboardRemove)}

	case CommitFailed:
		if _, ok := state.(CollectingAttachments); !ok {
			return state, nil
		}
		return state, []Effect{reply(MsgSubmitFailed, KeyboardAttachments)}
	}

	return state, nil
}

func (m *Machine) onText(state State, body string) (State, []Effect) {
	switch s := state.(type) {
	case AskingIdentity:
		return s, []Effect{reply(MsgChooseFromButtons, KeyboardIdentity)}

	case AskingName:
		if body == "" {
			return s, []Effect{reply(MsgAskName, KeyboardNone)}
		}
		name := truncateRunes(body, MaxIdentityFieldLength)
		return AskingRelation{Mode: s.Mode, Name: name}, []Effect{Reply{
			MessageID: MsgThanksName,
			Data:      map[string]interface{}{"Name": name},
			Keyboard:  KeyboardRelation,
		}}

	case AskingRelation:
		return s, []Effect{reply(MsgChooseFromButtons, KeyboardRelation)}

	case AskingContact:
		if body == "" {
			return s, []Effect{reply(MsgAskContact, KeyboardNone)}
		}
		identity := Identity{
			Mode:     s.Mode,
			Name:     s.Name,
			Relation: s.Relation,
			Contact:  truncateRunes(body, MaxIdentityFieldLength),
		}
		return AskingType{Identity: identity}, []Effect{reply(MsgAskType, KeyboardType)}

	case AskingType:
		return s, []Effect{reply(MsgChooseFromButtons, KeyboardType)}

	case AskingText:
		if body == "" {
			return s, []Effect{reply(MsgAskText, KeyboardNone)}
		}
		return CollectingAttachments{
			Identity: s.Identity,
			Type:     s.Type,
			Text:     body,
			Token:    m.NewToken(),
		}, []Effect{reply(MsgAfterText, KeyboardAttachments)}

	case CollectingAttachments:
		return s, []Effect{reply(MsgPressSendOrCancel, KeyboardAttachments)}
	}

	return state, []Effect{reply(MsgUseStart, KeyboardNone)}
}

func (m *Machine) onMedia(state State, media Media) (State, []Effect) {
	switch s := state.(type) {
	case CollectingAttachments:
		if m.MaxAttachments > 0 && len(s.Attachments) >= m.MaxAttachments {
			return s, []Effect{Reply{
				MessageID: MsgAttachmentLimit,
				Data:      map[string]interface{}{"Limit": m.MaxAttachments},
				Keyboard:  KeyboardAttachments,
			}}
		}
		return s, []Effect{StoreAttachment{Media: media}}
	case AskingText:
		return s, []Effect{reply(MsgSendTextFirst, KeyboardNone)}
	case AskingIdentity:
		return s, []Effect{reply(MsgChooseFromButtons, KeyboardIdentity)}
	case AskingName:
		return s, []Effect{reply(MsgAskName, KeyboardNone)}
	case AskingRelation:
		return s, []Effect{reply(MsgChooseFromButtons, KeyboardRelation)}
	case AskingContact:
		return s, []Effect{reply(MsgAskContact, KeyboardNone)}
	case AskingType:
		return s, []Effect{reply(MsgChooseFromButtons, KeyboardType)}
	}
	return state, []Effect{reply(MsgUseStart, KeyboardNone)}
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
