// Package mediagroups collects the messages of a Telegram album so they can
// be handled as one batch.
package mediagroups

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultProcessDelay is how long to wait for the rest of an album.
	DefaultProcessDelay = 1500 * time.Millisecond
	// DefaultMaxGroupSize is Telegram's album limit.
	DefaultMaxGroupSize = 10
)

// ProcessFunc handles a completed album. Messages are ordered by message ID.
type ProcessFunc func(ctx context.Context, groupID string, messages []telego.Message) error

type group struct {
	mu       sync.Mutex
	messages []telego.Message
	timer    *time.Timer
	closed   bool // taken for processing, late parts start a new group
}

// Manager buffers album messages and hands each album to a ProcessFunc once
// no new part has arrived for the configured delay.
type Manager struct {
	groups  sync.Map // map[string]*group
	handler ProcessFunc
	delay   time.Duration
	maxSize int
	perPart time.Duration
	wg      sync.WaitGroup
}

// NewManager creates a manager. A ProcessFunc call gets perPart for every
// message in the album, since each part is uploaded in turn.
func NewManager(handler ProcessFunc, delay time.Duration, maxSize int, perPart time.Duration) *Manager {
	if delay <= 0 {
		delay = DefaultProcessDelay
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxGroupSize
	}
	return &Manager{handler: handler, delay: delay, maxSize: maxSize, perPart: perPart}
}

// Add buffers an album message. Each new part restarts the wait, so slow
// deliveries still end up in one batch. Duplicates are dropped.
func (m *Manager) Add(message telego.Message) {
	if message.MediaGroupID == "" {
		return
	}
	groupID := message.MediaGroupID
	for {
		val, _ := m.groups.LoadOrStore(groupID, &group{})
		g := val.(*group)
		g.mu.Lock()
		if !g.closed {
			m.addLocked(g, groupID, message)
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()
	}
}

func (m *Manager) addLocked(g *group, groupID string, message telego.Message) {
	for _, existing := range g.messages {
		if existing.MessageID == message.MessageID {
			return
		}
	}
	if len(g.messages) >= m.maxSize {
		log.WithFields(log.Fields{"group_id": groupID, "message_id": message.MessageID}).Warn("Album size limit reached, dropping part")
		return
	}
	g.messages = append(g.messages, message)

	if g.timer != nil {
		// a timer that already fired will pick this part up in take
		if g.timer.Stop() {
			g.timer.Reset(m.delay)
		}
		return
	}
	m.wg.Add(1)
	g.timer = time.AfterFunc(m.delay, func() {
		defer m.wg.Done()
		m.flush(groupID)
	})
}

func (m *Manager) flush(groupID string) {
	messages := m.take(groupID)
	if len(messages) == 0 {
		return
	}

	ctx := context.Background()
	if timeout := m.Timeout(len(messages)); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log.WithFields(log.Fields{"group_id": groupID, "count": len(messages)}).Debug("Processing album")
	if err := m.handler(ctx, groupID, messages); err != nil {
		log.WithError(err).WithField("group_id", groupID).Error("Failed to process album")
	}
}

// Timeout is the processing budget for an album of n parts.
func (m *Manager) Timeout(n int) time.Duration {
	return m.perPart * time.Duration(n)
}

// take removes the group and returns its messages sorted by ID.
func (m *Manager) take(groupID string) []telego.Message {
	val, ok := m.groups.LoadAndDelete(groupID)
	if !ok {
		return nil
	}
	g := val.(*group)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true

	messages := append([]telego.Message(nil), g.messages...)
	sort.Slice(messages, func(i, j int) bool { return messages[i].MessageID < messages[j].MessageID })
	return messages
}

// Shutdown processes every buffered album immediately and waits for running
// handlers to finish.
func (m *Manager) Shutdown() {
	m.groups.Range(func(key, value interface{}) bool {
		g := value.(*group)
		g.mu.Lock()
		stopped := g.timer != nil && g.timer.Stop()
		g.mu.Unlock()
		if stopped {
			m.flush(key.(string))
			m.wg.Done()
		}
		return true
	})
	m.wg.Wait()
	log.Info("Media group manager stopped")
}
