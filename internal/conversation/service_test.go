package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type memorySessions struct {
	mu      sync.Mutex
	states  map[string]State
	putErr  error
	deletes int
}

func newMemorySessions() *memorySessions {
	return &memorySessions{states: make(map[string]State)}
}

func (m *memorySessions) Get(_ context.Context, key string) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[key]
	return s, ok, nil
}

func (m *memorySessions) Put(ctx context.Context, key string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.putErr != nil {
		return m.putErr
	}
	m.states[key] = state
	return nil
}

func (m *memorySessions) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.deletes++
	delete(m.states, key)
	return nil
}

type MockAttachmentStore struct {
	mock.Mock
}

func (m *MockAttachmentStore) Accept(ctx context.Context, ownerID int64, media Media) (AttachmentDraft, error) {
	args := m.Called(ctx, ownerID, media)
	return args.Get(0).(AttachmentDraft), args.Error(1)
}

type MockCommitter struct {
	mock.Mock
}

func (m *MockCommitter) Commit(ctx context.Context, req CommitRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func newTestService(t *testing.T) (*Service, *memorySessions, *MockAttachmentStore, *MockCommitter) {
	t.Helper()
	sessions := newMemorySessions()
	store := &MockAttachmentStore{}
	committer := &MockCommitter{}
	svc := NewService(newTestMachine(10), sessions, store, committer)
	return svc, sessions, store, committer
}

var conv = Conversation{ChatID: 42, UserID: 7}

func replyMessages(replies []Reply) []string {
	ids := make([]string, 0, len(replies))
	for _, r := range replies {
		ids = append(ids, r.MessageID)
	}
	return ids
}

func TestConversationKey(t *testing.T) {
	assert.Equal(t, "chat:42:user:7", conv.Key())
}

func TestServiceAnonymousSubmission(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _, committer := newTestService(t)

	committer.On("Commit", mock.Anything, mock.MatchedBy(func(req CommitRequest) bool {
		return req.ConversationKey == conv.Key() &&
			req.UserID == 7 &&
			req.Submission.Text == "Please add subtitles" &&
			req.Submission.Identity.Anonymous() &&
			req.Submission.Type == TypeIdea &&
			len(req.Submission.Attachments) == 0
	})).Return("fb-1", nil).Once()

	steps := []Event{
		Start{},
		IdentityChosen{Mode: IdentityAnonymous},
		TypeChosen{Type: TypeIdea},
		Text{Body: "Please add subtitles"},
	}
	for _, ev := range steps {
		_, err := svc.Handle(ctx, conv, ev)
		require.NoError(t, err)
	}

	replies, err := svc.Handle(ctx, conv, SendPressed{})
	require.NoError(t, err)
	assert.Equal(t, []string{MsgFinalThankYou}, replyMessages(replies))

	_, found := sessions.states[conv.Key()]
	assert.False(t, found, "session must be reset after commit")
	committer.AssertExpectations(t)
}

func TestServiceAttachmentUploadAndCommit(t *testing.T) {
	ctx := context.Background()
	svc, sessions, store, committer := newTestService(t)
	sessions.states[conv.Key()] = CollectingAttachments{
		Identity: Identity{Mode: IdentityName, Name: "Ann", Relation: RelationMember},
		Type:     TypeProblem,
		Text:     "Projector is broken",
		Token:    "tok",
	}

	photo := Media{Kind: KindPhoto, FileID: "file-1", UniqueID: "u1"}
	store.On("Accept", mock.Anything, int64(7), photo).
		Return(AttachmentDraft{Kind: KindPhoto, ObjectKey: "feedback/7/1-u1"}, nil).Once()

	replies, err := svc.Handle(ctx, conv, photo)
	require.NoError(t, err)
	assert.Equal(t, []string{MsgAttachmentSaved}, replyMessages(replies))

	committer.On("Commit", mock.Anything, mock.MatchedBy(func(req CommitRequest) bool {
		return req.Submission.Token == "tok" &&
			len(req.Submission.Attachments) == 1 &&
			req.Submission.Attachments[0].ObjectKey == "feedback/7/1-u1"
	})).Return("fb-2", nil).Once()

	_, err = svc.Handle(ctx, conv, SendPressed{})
	require.NoError(t, err)
	store.AssertExpectations(t)
	committer.AssertExpectations(t)
}

func TestServiceUploadFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	svc, sessions, store, _ := newTestService(t)
	before := CollectingAttachments{Type: TypeIdea, Text: "x", Token: "tok"}
	sessions.states[conv.Key()] = before

	doc := Media{Kind: KindDocument, FileID: "f", UniqueID: "u", MimeType: "application/pdf"}
	store.On("Accept", mock.Anything, int64(7), doc).Return(AttachmentDraft{}, errors.New("s3 down")).Once()

	replies, err := svc.Handle(ctx, conv, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{MsgAttachmentFailed}, replyMessages(replies))
	assert.Equal(t, before, sessions.states[conv.Key()])
}

func TestServiceCommitFailureAllowsRetry(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _, committer := newTestService(t)
	before := CollectingAttachments{Type: TypeQuestion, Text: "When is the picnic?", Token: "tok"}
	sessions.states[conv.Key()] = before

	committer.On("Commit", mock.Anything, mock.Anything).Return("", errors.New("db down")).Once()
	replies, err := svc.Handle(ctx, conv, SendPressed{})
	require.NoError(t, err)
	assert.Equal(t, []string{MsgSubmitFailed}, replyMessages(replies))
	assert.Equal(t, before, sessions.states[conv.Key()])

	committer.On("Commit", mock.Anything, mock.MatchedBy(func(req CommitRequest) bool {
		return req.Submission.Token == "tok"
	})).Return("fb-3", nil).Once()
	replies, err = svc.Handle(ctx, conv, SendPressed{})
	require.NoError(t, err)
	assert.Equal(t, []string{MsgFinalThankYou}, replyMessages(replies))
	committer.AssertExpectations(t)
}

func TestServiceAlbumCollapsesReplies(t *testing.T) {
	ctx := context.Background()
	svc, sessions, store, _ := newTestService(t)
	sessions.states[conv.Key()] = CollectingAttachments{Type: TypeThanks, Text: "Great service", Token: "tok"}

	var album []Event
	for _, id := range []string{"a", "b", "c"} {
		m := Media{Kind: KindPhoto, FileID: id, UniqueID: id}
		store.On("Accept", mock.Anything, int64(7), m).
			Return(AttachmentDraft{Kind: KindPhoto, ObjectKey: "feedback/7/" + id}, nil).Once()
		album = append(album, m)
	}

	replies, err := svc.Handle(ctx, conv, album...)
	require.NoError(t, err)
	assert.Equal(t, []string{MsgAttachmentSaved}, replyMessages(replies))
	assert.Len(t, sessions.states[conv.Key()].(CollectingAttachments).Attachments, 3)
}

func TestServiceSaveFailureIsReturned(t *testing.T) {
	svc, sessions, _, _ := newTestService(t)
	sessions.putErr = errors.New("mongo down")

	_, err := svc.Handle(context.Background(), conv, Start{})
	assert.Error(t, err)
}

func TestServiceCancelDeletesSession(t *testing.T) {
	svc, sessions, _, _ := newTestService(t)
	sessions.states[conv.Key()] = AskingType{Identity: Identity{Mode: IdentityAnonymous}}

	replies, err := svc.Handle(context.Background(), conv, Cancel{})
	require.NoError(t, err)
	assert.Equal(t, []string{MsgCancelled}, replyMessages(replies))
	assert.Empty(t, sessions.states)
	assert.Equal(t, 1, sessions.deletes)
}

func TestServiceSerializesSameConversation(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _, committer := newTestService(t)
	sessions.states[conv.Key()] = CollectingAttachments{Type: TypeIdea, Text: "x", Token: "tok"}

	// Duplicate deliveries of "send": the second one sees Idle and only nudges.
	committer.On("Commit", mock.Anything, mock.Anything).Return("fb-1", nil).Once()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Handle(ctx, conv, SendPressed{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	committer.AssertNumberOfCalls(t, "Commit", 1)
}

func TestServiceUploadHittingDeadlineStillReplies(t *testing.T) {
	svc, sessions, store, _ := newTestService(t)
	for _, ev := range []Event{Start{}, IdentityChosen{Mode: IdentityAnonymous}, TypeChosen{Type: TypeProblem}, Text{Body: "Broken projector"}} {
		_, err := svc.Handle(context.Background(), conv, ev)
		require.NoError(t, err)
	}

	store.On("Accept", mock.Anything, int64(7), mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(AttachmentDraft{}, context.DeadlineExceeded).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	replies, err := svc.Handle(ctx, conv, Media{Kind: KindPhoto, FileID: "f1", UniqueID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{MsgAttachmentFailed}, replyMessages(replies))

	state, ok := sessions.states[conv.Key()]
	require.True(t, ok)
	collecting, ok := state.(CollectingAttachments)
	require.True(t, ok)
	assert.Empty(t, collecting.Attachments)
}

func TestServiceCommitHittingDeadlineKeepsSession(t *testing.T) {
	svc, sessions, _, committer := newTestService(t)
	for _, ev := range []Event{Start{}, IdentityChosen{Mode: IdentityAnonymous}, TypeChosen{Type: TypeIdea}, Text{Body: "More chairs"}} {
		_, err := svc.Handle(context.Background(), conv, ev)
		require.NoError(t, err)
	}

	committer.On("Commit", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return("", context.DeadlineExceeded).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	replies, err := svc.Handle(ctx, conv, SendPressed{})
	require.NoError(t, err)
	assert.Equal(t, []string{MsgSubmitFailed}, replyMessages(replies))
	assert.IsType(t, CollectingAttachments{}, sessions.states[conv.Key()])
}
