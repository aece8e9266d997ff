package events

import (
	"sync"

	"go.uber.org/zap"

	"arena/internal/models"
)

// Bus fans engine events out to in-process subscribers (the websocket feed,
// tests). Events are durably recorded in the outbox table first; the bus is
// a best-effort push on top of it, so a slow subscriber is skipped rather
// than blocking the engine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan models.EngineEvent
	nextID uint64
	log    *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		subs: make(map[uint64]chan models.EngineEvent),
		log:  log,
	}
}

// Subscribe registers a buffered subscription. The returned cancel func must
// be called to release it.
func (b *Bus) Subscribe(buffer int) (<-chan models.EngineEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan models.EngineEvent, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers e to every subscriber without blocking.
func (b *Bus) Publish(e models.EngineEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			if b.log != nil {
				b.log.Debug("event subscriber buffer full, dropping",
					zap.String("event_id", e.ID),
					zap.String("type", e.Type),
				)
			}
		}
	}
}
