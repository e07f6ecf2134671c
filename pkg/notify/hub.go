// Package notify is the in-process pub/sub fabric between the
// conversation service and its observers (open conversation views,
// unread-badge views). Delivery is asynchronous and best-effort: a slow
// observer loses events rather than blocking writers, and observers are
// expected to rebuild from a fresh snapshot when that happens.
package notify

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"huddle/pkg/logger"
	"huddle/pkg/models"
)

// EventType tags what changed.
type EventType string

const (
	EventMessageAppended    EventType = "message.appended"
	EventMessageEdited      EventType = "message.edited"
	EventMessageRemoved     EventType = "message.removed"
	EventConversationChange EventType = "conversation.changed"
	EventReadStateChange    EventType = "readstate.changed"
)

// Event is one change notification. Independent entities may arrive in
// either order; consumers must not assume cross-entity ordering.
type Event struct {
	Type         EventType            `json:"type"`
	Conversation string               `json:"conversation,omitempty"`
	UserID       string               `json:"userId,omitempty"`
	Message      *models.Message      `json:"message,omitempty"`
	Summary      *models.Conversation `json:"summary,omitempty"`
	TS           int64                `json:"ts"`
}

// UserTopic is the per-user topic carrying everything that affects that
// user's views.
func UserTopic(userID string) string { return "user:" + userID }

// ConversationTopic carries events of one conversation.
func ConversationTopic(convID string) string { return "conv:" + convID }

// BroadcastTopic carries activity every connected client cares about:
// fixed channels have no participant list, so their summary changes go
// here instead of per-user topics.
func BroadcastTopic() string { return "broadcast" }

var dropsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "huddle",
	Subsystem: "notify",
	Name:      "dropped_events_total",
	Help:      "Events dropped because a subscriber buffer was full.",
})

func init() {
	prometheus.MustRegister(dropsTotal)
}

// Subscription is one observer's event feed. Close stops delivery; it
// never affects in-flight publishes to other observers.
type Subscription struct {
	C <-chan Event

	topic string
	id    int64
	ch    chan Event
	hub   *Hub
	once  sync.Once
}

// Close unregisters the subscription. The channel is left open: a
// publisher that snapshotted the subscriber set before Close may still
// complete a buffered send, and closing under it would panic.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.topic, s.id)
	})
}

// Hub fans events out to per-topic subscriber sets.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]*Subscription
	nextID int64
	buffer int
}

// NewHub returns a hub whose subscriptions buffer up to `buffer` events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[string]map[int64]*Subscription), buffer: buffer}
}

// Subscribe registers an observer on a topic.
func (h *Hub) Subscribe(topic string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{topic: topic, id: h.nextID, ch: make(chan Event, h.buffer), hub: h}
	sub.C = sub.ch
	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = make(map[int64]*Subscription)
	}
	h.subs[topic][sub.id] = sub
	return sub
}

func (h *Hub) unsubscribe(topic string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[topic]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Publish delivers the event to every subscriber of the topic without
// blocking: full buffers drop the event and bump the drop counter.
func (h *Hub) Publish(topic string, ev Event) {
	h.mu.RLock()
	set := h.subs[topic]
	// copy out so delivery happens outside the lock
	targets := make([]*Subscription, 0, len(set))
	for _, s := range set {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- ev:
		default:
			dropsTotal.Inc()
			logger.Debug("event_dropped", zap.String("topic", topic), zap.String("type", string(ev.Type)))
		}
	}
}

// Subscribers returns the live subscription count for a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
