package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockHandler struct {
	mock.Mock
}

func (m *MockHandler) HandleMessage(ctx context.Context, message telego.Message) error {
	return m.Called(ctx, message).Error(0)
}

func (m *MockHandler) HandleCallbackQuery(ctx context.Context, query telego.CallbackQuery) error {
	return m.Called(ctx, query).Error(0)
}

func (m *MockHandler) SetupCommands(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type fakeAlbums struct {
	mu       sync.Mutex
	parts    []telego.Message
	shutdown bool
}

func (f *fakeAlbums) Add(message telego.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parts = append(f.parts, message)
}

func (f *fakeAlbums) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = true
}

func TestNewValidatesDeps(t *testing.T) {
	_, err := New(BotDeps{})
	assert.Error(t, err)

	updates := make(chan telego.Update)
	b, err := New(BotDeps{Updates: updates, Handler: &MockHandler{}, Albums: &fakeAlbums{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultUpdateTimeout, b.timeout)
}

func TestStartRoutesUpdates(t *testing.T) {
	updates := make(chan telego.Update, 4)
	h := &MockHandler{}
	albums := &fakeAlbums{}
	b, err := New(BotDeps{Updates: updates, Handler: h, Albums: albums, RateLimit: 1000})
	require.NoError(t, err)

	msg := telego.Message{MessageID: 1, From: &telego.User{ID: 1}, Chat: telego.Chat{ID: 1}, Text: "hi"}
	query := telego.CallbackQuery{ID: "q", Data: "att|send"}

	h.On("SetupCommands", mock.Anything).Return(errors.New("menu unavailable")).Once()
	h.On("HandleMessage", mock.Anything, msg).Return(nil).Once()
	h.On("HandleCallbackQuery", mock.Anything, query).Return(errors.New("boom")).Once()

	updates <- telego.Update{UpdateID: 1, Message: &msg}
	updates <- telego.Update{UpdateID: 2, CallbackQuery: &query}
	updates <- telego.Update{UpdateID: 3, Message: &telego.Message{MessageID: 2, MediaGroupID: "g"}}
	updates <- telego.Update{UpdateID: 4, Message: &telego.Message{MessageID: 3, Chat: telego.Chat{ID: 5}}}
	close(updates)

	done := make(chan struct{})
	go func() {
		b.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop after the channel closed")
	}

	h.AssertExpectations(t)
	h.AssertNumberOfCalls(t, "HandleMessage", 1)
	assert.Len(t, albums.parts, 1)
	assert.True(t, albums.shutdown)
}

func TestPanicIsRecovered(t *testing.T) {
	h := &MockHandler{}
	b, err := New(BotDeps{Updates: make(chan telego.Update), Handler: h, Albums: &fakeAlbums{}, RateLimit: 1000})
	require.NoError(t, err)

	msg := telego.Message{MessageID: 1, From: &telego.User{ID: 1}}
	h.On("HandleMessage", mock.Anything, msg).Run(func(mock.Arguments) { panic("nil map") }).Return(nil)

	assert.NotPanics(t, func() { b.processUpdate(context.Background(), telego.Update{Message: &msg}) })
}
