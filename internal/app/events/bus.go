// Package events is the in-process pub/sub the bots publish on and the admin
// websocket forwards from.
package events

import (
	"sync"

	"github.com/rs/zerolog"
)

const (
	TopicChatMessage       = "chat:message"
	TopicModerationVerdict = "moderation:verdict"
	TopicBotStatus         = "bot:status"
	TopicAppError          = "app:error"

	defaultBufferSize = 128
)

// Topics lists every topic the bot publishes on.
var Topics = []string{TopicChatMessage, TopicModerationVerdict, TopicBotStatus, TopicAppError}

// Bus delivers without blocking: a subscriber whose buffer is full misses the
// event and the drop is counted.
type Bus struct {
	logger zerolog.Logger

	mu        sync.RWMutex
	subs      map[string]map[int]chan any
	nextSubID int
	closed    bool

	dropMu     sync.Mutex
	dropCounts map[string]uint64
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		logger:     logger.With().Str("component", "events").Logger(),
		subs:       make(map[string]map[int]chan any),
		dropCounts: make(map[string]uint64),
	}
}

func (b *Bus) Publish(topic string, payload any) {
	if topic == "" {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
			b.recordDrop(topic)
		}
	}
}

// Subscribe returns a buffered channel of topic's events and a function that
// unsubscribes and closes it. The function may be called more than once.
func (b *Bus) Subscribe(topic string) (<-chan any, func()) {
	ch := make(chan any, defaultBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan any)
	}
	id := b.nextSubID
	b.nextSubID++
	b.subs[topic][id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs, ok := b.subs[topic]
			if !ok {
				return
			}
			if _, ok := subs[id]; !ok {
				return
			}
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.subs, topic)
			}
			close(ch)
		})
	}

	return ch, unsubscribe
}

// Close closes every subscriber channel; later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, topic)
	}
}

// Drops reports how many events topic's subscribers have missed.
func (b *Bus) Drops(topic string) uint64 {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	return b.dropCounts[topic]
}

func (b *Bus) recordDrop(topic string) {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	b.dropCounts[topic]++
	if b.dropCounts[topic]%100 == 1 {
		b.logger.Warn().Str("topic", topic).Uint64("total_drops", b.dropCounts[topic]).Msg("dropping events")
	}
}
