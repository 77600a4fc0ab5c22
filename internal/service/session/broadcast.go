package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"ai-live-copilot-service/internal/models"
	"ai-live-copilot-service/internal/observability/metrics"
)

// subscriberBuffer is the per-subscriber queue depth. A subscriber that
// falls this far behind loses events.
const subscriberBuffer = 64

// Broadcaster fans events out to display-layer subscribers.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan models.Event
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan models.Event)}
}

// Subscribe registers a subscriber. The returned cancel func closes the
// channel and is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan models.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan models.Event, subscriberBuffer)
	b.subs[id] = ch
	metrics.DefaultMetrics.EventSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
				metrics.DefaultMetrics.EventSubscribers.Dec()
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broadcaster) Publish(ev models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Int("subscriber", id).Str("type", ev.Type).Msg("Subscriber slow, dropping event")
		}
	}
}

// Len is the number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
