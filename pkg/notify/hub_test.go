package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, c <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-c:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishReachesTopicSubscribers(t *testing.T) {
	h := NewHub(4)
	s1 := h.Subscribe(ConversationTopic("c1"))
	defer s1.Close()
	s2 := h.Subscribe(ConversationTopic("c1"))
	defer s2.Close()
	other := h.Subscribe(ConversationTopic("c2"))
	defer other.Close()

	h.Publish(ConversationTopic("c1"), Event{Type: EventMessageAppended, Conversation: "c1"})

	require.Equal(t, "c1", recvEvent(t, s1.C).Conversation)
	require.Equal(t, "c1", recvEvent(t, s2.C).Conversation)
	select {
	case <-other.C:
		t.Fatal("subscriber of another topic received the event")
	default:
	}
}

func TestUnsubscribeIsolation(t *testing.T) {
	h := NewHub(4)
	gone := h.Subscribe(UserTopic("u1"))
	stays := h.Subscribe(UserTopic("u1"))
	defer stays.Close()

	gone.Close()
	require.Equal(t, 1, h.Subscribers(UserTopic("u1")))

	h.Publish(UserTopic("u1"), Event{Type: EventReadStateChange, UserID: "u1"})
	require.Equal(t, EventReadStateChange, recvEvent(t, stays.C).Type)

	select {
	case <-gone.C:
		t.Fatal("closed subscription received the event")
	default:
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h := NewHub(1)
	s := h.Subscribe(UserTopic("u1"))
	s.Close()
	s.Close()
	require.Zero(t, h.Subscribers(UserTopic("u1")))
}

func TestSlowConsumerDoesNotBlockPublish(t *testing.T) {
	h := NewHub(1)
	slow := h.Subscribe(ConversationTopic("c1"))
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// buffer holds one; the rest must be dropped, not block
		for i := 0; i < 10; i++ {
			h.Publish(ConversationTopic("c1"), Event{Type: EventMessageAppended, TS: int64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}

	// the first event is still delivered
	require.Equal(t, int64(0), recvEvent(t, slow.C).TS)
}
