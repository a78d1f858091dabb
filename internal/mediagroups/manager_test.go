package mediagroups

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	groups map[string][]int
	done   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{groups: map[string][]int{}, done: make(chan struct{}, 10)}
}

func (r *recorder) handle(_ context.Context, groupID string, messages []telego.Message) error {
	r.mu.Lock()
	for _, m := range messages {
		r.groups[groupID] = append(r.groups[groupID], m.MessageID)
	}
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func albumPart(groupID string, id int) telego.Message {
	return telego.Message{MessageID: id, MediaGroupID: groupID}
}

func TestAlbumDeliveredOnceInOrder(t *testing.T) {
	rec := newRecorder()
	m := NewManager(rec.handle, 20*time.Millisecond, 10, time.Second)

	m.Add(albumPart("g1", 3))
	m.Add(albumPart("g1", 1))
	m.Add(albumPart("g1", 2))
	m.Add(albumPart("g1", 2))

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatal("album was not processed")
	}
	m.Shutdown()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, rec.groups["g1"])
}

func TestAlbumSizeLimit(t *testing.T) {
	rec := newRecorder()
	m := NewManager(rec.handle, time.Hour, 2, time.Second)

	m.Add(albumPart("g2", 1))
	m.Add(albumPart("g2", 2))
	m.Add(albumPart("g2", 3))
	m.Shutdown()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.groups["g2"], 2)
}

func TestNonAlbumMessageIgnored(t *testing.T) {
	rec := newRecorder()
	m := NewManager(rec.handle, time.Millisecond, 10, time.Second)
	m.Add(telego.Message{MessageID: 1})
	m.Shutdown()
	assert.Empty(t, rec.groups)
}

func TestAlbumBudgetGrowsWithParts(t *testing.T) {
	m := NewManager(newRecorder().handle, time.Second, 10, 30*time.Second)
	assert.Equal(t, 30*time.Second, m.Timeout(1))
	assert.Equal(t, 5*time.Minute, m.Timeout(10))
}

func TestAlbumHandlerGetsScaledDeadline(t *testing.T) {
	got := make(chan time.Duration, 1)
	handler := func(ctx context.Context, _ string, _ []telego.Message) error {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		got <- time.Until(deadline)
		return nil
	}
	m := NewManager(handler, 10*time.Millisecond, 10, time.Minute)
	m.Add(albumPart("g3", 1))
	m.Add(albumPart("g3", 2))
	m.Add(albumPart("g3", 3))

	select {
	case left := <-got:
		assert.Greater(t, left, 2*time.Minute)
	case <-time.After(time.Second):
		t.Fatal("album was not processed")
	}
	m.Shutdown()
}
