// Package notify delivers keys-changed events to live observers: in-process
// subscribers (the SSE stream), other instances over Kafka, or both.
package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/service"
	"github.com/turtacn/keyvault/internal/infrastructure/monitoring"
	"github.com/turtacn/keyvault/pkg/logger"
)

const defaultBuffer = 16

var _ service.ChangeNotifier = (*Hub)(nil)

// Subscription is one observer's event stream.
type Subscription struct {
	ID string
	// KeyringID limits delivery to one keyring; empty receives everything.
	KeyringID string

	events chan models.KeysChangedEvent
	hub    *Hub
	once   sync.Once
}

// Events is closed when the subscription is closed.
func (s *Subscription) Events() <-chan models.KeysChangedEvent {
	return s.events
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub fans events out to subscribers without ever blocking the sender. A
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	metrics *monitoring.Metrics
	logger  logger.Logger
}

// NewHub creates an empty hub.
func NewHub(metrics *monitoring.Metrics, log logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Hub{
		subs:    make(map[string]*Subscription),
		metrics: metrics,
		logger:  log.WithComponent("NotifyHub"),
	}
}

// Subscribe registers an observer. buffer <= 0 uses a small default.
func (h *Hub) Subscribe(keyringID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	sub := &Subscription{
		ID:        uuid.NewString(),
		KeyringID: keyringID,
		events:    make(chan models.KeysChangedEvent, buffer),
		hub:       h,
	}
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID]; ok {
		delete(h.subs, sub.ID)
		close(sub.events)
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// NotifyKeysChanged delivers event to every matching subscriber.
func (h *Hub) NotifyKeysChanged(ctx context.Context, event models.KeysChangedEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.KeyringID != "" && sub.KeyringID != event.KeyringID {
			continue
		}
		select {
		case sub.events <- event:
		default:
			h.metrics.RecordNotificationDropped("hub")
			h.logger.Debug(ctx, "Subscriber buffer full, event dropped",
				logger.String("subscription_id", sub.ID),
				logger.String("event_id", event.EventID),
			)
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		close(sub.events)
		delete(h.subs, id)
	}
}
