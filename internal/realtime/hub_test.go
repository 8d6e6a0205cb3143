package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventBalanceUpdated, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventBalanceUpdated},
	}}

	balance := &Event{Type: EventBalanceUpdated}
	purchase := &Event{Type: EventPurchaseRecorded}

	if !h.shouldSend(client, balance) {
		t.Error("Should receive balance.updated events")
	}
	if h.shouldSend(client, purchase) {
		t.Error("Should NOT receive purchase.recorded events")
	}
}

func TestShouldSend_UserFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		UserIDs: []string{"u1"},
	}}

	mine := &Event{
		Type: EventBalanceUpdated,
		Data: map[string]interface{}{"userId": "u1", "balance": float64(50)},
	}
	someoneElses := &Event{
		Type: EventBalanceUpdated,
		Data: map[string]interface{}{"userId": "u2", "balance": float64(10)},
	}

	if !h.shouldSend(client, mine) {
		t.Error("Should match on own user id")
	}
	if h.shouldSend(client, someoneElses) {
		t.Error("Should NOT receive other users' events")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventPurchaseRecorded}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive everything")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestBalanceChanged_ReachesSubscribedClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 16),
		sub:  Subscription{UserIDs: []string{"u1"}},
	}
	h.register <- client

	h.BalanceChanged("u1", 49)

	select {
	case raw := <-client.send:
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			t.Fatalf("unmarshal pushed event: %v", err)
		}
		if event.Type != EventBalanceUpdated {
			t.Errorf("expected %s, got %s", EventBalanceUpdated, event.Type)
		}
		data := event.Data.(map[string]interface{})
		if data["userId"] != "u1" || data["balance"] != float64(49) {
			t.Errorf("unexpected event data: %v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribed client never received balance.updated")
	}
}

func TestBalanceChanged_SkipsOtherUsers(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 16),
		sub:  Subscription{UserIDs: []string{"u1"}},
	}
	h.register <- client

	h.BalanceChanged("u2", 100)

	select {
	case raw := <-client.send:
		t.Fatalf("client filtered to u1 received %s", raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPurchaseRecorded_ReachesSubscribedClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 16),
		sub:  Subscription{UserIDs: []string{"u1"}, EventTypes: []EventType{EventPurchaseRecorded}},
	}
	h.register <- client

	h.PurchaseRecorded("u1", "pur_abc123", 50)

	select {
	case raw := <-client.send:
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			t.Fatalf("unmarshal pushed event: %v", err)
		}
		if event.Type != EventPurchaseRecorded {
			t.Errorf("expected %s, got %s", EventPurchaseRecorded, event.Type)
		}
		data := event.Data.(map[string]interface{})
		if data["purchaseId"] != "pur_abc123" || data["panels"] != float64(50) {
			t.Errorf("unexpected event data: %v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribed client never received purchase.recorded")
	}
}

func TestRun_ShutdownClosesClients(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 1), sub: Subscription{AllEvents: true}}
	h.register <- client

	// Wait for registration to land before shutting down.
	deadline := time.After(2 * time.Second)
	for {
		h.mu.RLock()
		n := len(h.clients)
		h.mu.RUnlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected send channel closed on shutdown")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed on shutdown")
	}

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub done channel not closed")
	}
}

func TestStats(t *testing.T) {
	h := testHub()
	stats := h.Stats()
	if stats["connectedClients"] != 0 {
		t.Errorf("expected 0 connected clients, got %v", stats["connectedClients"])
	}
}
