package httpapi

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"ladybot/internal/observability"
)

func drain(c *client) []Message {
	var out []Message
	for m := range c.send {
		out = append(out, m)
	}
	return out
}

func TestClosedAlwaysReachesFullClient(t *testing.T) {
	hub := NewHub(observability.NewMetrics("ladybot_test", prometheus.NewRegistry()))
	c, ok := hub.register(Message{Type: TypeSnapshot})
	if !ok {
		t.Fatal("register failed")
	}

	// fill the queue as far as enqueue allows
	for i := 0; i < clientQueue-2; i++ {
		hub.Append("x")
	}
	if hub.Clients() != 1 {
		t.Fatal("client dropped too early")
	}

	hub.Closed()
	got := drain(c)
	if len(got) != clientQueue {
		t.Fatalf("got %d messages, want %d", len(got), clientQueue)
	}
	if last := got[len(got)-1]; last.Type != TypeClosed {
		t.Fatalf("last message = %+v, want closed", last)
	}
}

func TestSlowClientDroppedBeforeReservedSlot(t *testing.T) {
	hub := NewHub(nil)
	c, _ := hub.register(Message{Type: TypeSnapshot})

	for i := 0; i < clientQueue-1; i++ {
		hub.Append("x")
	}
	if hub.Clients() != 0 {
		t.Fatal("client filling the reserved slot should be dropped")
	}
	if n := len(drain(c)); n != clientQueue-1 {
		t.Fatalf("queued %d messages, want %d", n, clientQueue-1)
	}
}

func TestListeningBroadcast(t *testing.T) {
	hub := NewHub(nil)
	c, _ := hub.register(Message{Type: TypeSnapshot})

	hub.Listening(true)
	hub.Listening(false)
	hub.Closed()

	got := drain(c)
	if len(got) != 4 || got[1].Type != TypeListening || !*got[1].Listening || *got[2].Listening {
		t.Fatalf("messages = %+v", got)
	}
}
