package ws

import "testing"

func TestUnregisterIsIdempotent(t *testing.T) {
	h := NewHub()

	c := &Client{hub: h, ownerID: 1, send: make(chan Event, 1)}
	h.clients[1] = map[*Client]bool{c: true}
	h.metrics.Connections.Inc()

	h.unregister(c)
	h.unregister(c)

	if got := h.metrics.Connections.Load(); got != 0 {
		t.Errorf("Connections = %d after double unregister, want 0", got)
	}
	if len(h.clients) != 0 {
		t.Errorf("clients map not empty: %v", h.clients)
	}
}

func TestUnregisterLeavesOtherClientsAlone(t *testing.T) {
	h := NewHub()

	a := &Client{hub: h, ownerID: 1, send: make(chan Event, 1)}
	b := &Client{hub: h, ownerID: 1, send: make(chan Event, 1)}
	h.clients[1] = map[*Client]bool{a: true, b: true}
	h.metrics.Connections.Add(2)

	h.unregister(a)

	if got := h.metrics.Connections.Load(); got != 1 {
		t.Errorf("Connections = %d, want 1", got)
	}
	if !h.clients[1][b] {
		t.Error("remaining client was dropped")
	}

	select {
	case _, ok := <-b.send:
		if !ok {
			t.Error("remaining client's send channel was closed")
		}
	default:
	}
}
