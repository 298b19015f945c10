package realtime

import (
	"testing"
	"time"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(10)

	err := r.Register(newClient("conn1", 4))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if r.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", r.Count())
	}

	if _, exists := r.Get("conn1"); !exists {
		t.Fatal("Client not found")
	}

	if err := r.Register(newClient("conn1", 4)); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestRegistry_RegisterMaxConnections(t *testing.T) {
	r := NewRegistry(2)

	r.Register(newClient("conn1", 4))
	r.Register(newClient("conn2", 4))

	// Third connection should fail
	err := r.Register(newClient("conn3", 4))
	if err != ErrMaxConnectionsReached {
		t.Errorf("Expected ErrMaxConnectionsReached, got %v", err)
	}
}

func TestRegistry_JoinAndUnregister(t *testing.T) {
	r := NewRegistry(10)

	c1 := newClient("conn1", 4)
	r.Register(c1)
	r.Register(newClient("conn2", 4))
	r.Join("conn1", "TID-1")
	r.Join("conn2", "TID-1")

	if got := len(r.InRoom("TID-1")); got != 2 {
		t.Fatalf("Expected 2 clients in room, got %d", got)
	}

	if err := r.Unregister("conn1"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}

	if r.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", r.Count())
	}
	if got := len(r.InRoom("TID-1")); got != 1 {
		t.Errorf("Expected 1 client in room, got %d", got)
	}

	select {
	case <-c1.done:
	default:
		t.Error("Unregistered client was not closed")
	}
	if c1.enqueue([]byte("x")) {
		t.Error("Closed client accepted a frame")
	}
}

func TestRegistry_JoinMovesRooms(t *testing.T) {
	r := NewRegistry(10)
	r.Register(newClient("conn1", 4))

	r.Join("conn1", "TID-1")
	r.Join("conn1", "TID-2")

	if got := len(r.InRoom("TID-1")); got != 0 {
		t.Errorf("Expected old room to be empty, got %d", got)
	}
	if got := len(r.InRoom("TID-2")); got != 1 {
		t.Errorf("Expected 1 client in new room, got %d", got)
	}
	if r.Stats().Rooms != 1 {
		t.Errorf("Expected 1 room, got %d", r.Stats().Rooms)
	}

	if err := r.Join("missing", "TID-1"); err == nil {
		t.Error("Expected join of unknown client to fail")
	}
}

func TestRegistry_UpdateActivity(t *testing.T) {
	r := NewRegistry(10)
	r.Register(newClient("conn1", 4))

	c, _ := r.Get("conn1")
	firstHeard := c.LastHeardFrom()

	time.Sleep(10 * time.Millisecond)

	if err := r.UpdateActivity("conn1"); err != nil {
		t.Fatalf("UpdateActivity failed: %v", err)
	}

	if !c.LastHeardFrom().After(firstHeard) {
		t.Error("LastHeardFrom was not updated")
	}
}

func TestRegistry_InactiveClients(t *testing.T) {
	r := NewRegistry(10)
	r.Register(newClient("conn1", 4))
	r.Register(newClient("conn2", 4))

	// Make conn1 inactive by manually setting its timestamp
	c1, _ := r.Get("conn1")
	c1.mu.Lock()
	c1.lastHeardFrom = time.Now().Add(-5 * time.Minute)
	c1.mu.Unlock()

	inactive := r.InactiveClients(2 * time.Minute)
	if len(inactive) != 1 {
		t.Fatalf("Expected 1 inactive connection, got %d", len(inactive))
	}

	if inactive[0] != "conn1" {
		t.Errorf("Expected conn1 to be inactive, got %s", inactive[0])
	}
}

func TestClient_EnqueueDropsWhenFull(t *testing.T) {
	c := newClient("conn1", 1)

	if !c.enqueue([]byte("a")) {
		t.Fatal("Expected first frame to be queued")
	}
	if c.enqueue([]byte("b")) {
		t.Error("Expected second frame to be dropped")
	}
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry(100)
	r.Register(newClient("conn1", 4))
	r.Register(newClient("conn2", 4))
	r.Register(newClient("conn3", 4))
	r.Join("conn1", "TID-1")
	r.Join("conn2", "TID-1")
	r.Join("conn3", "TID-2")

	stats := r.Stats()
	if stats.TotalConnections != 3 {
		t.Errorf("Expected 3 connections, got %d", stats.TotalConnections)
	}
	if stats.Rooms != 2 {
		t.Errorf("Expected 2 rooms, got %d", stats.Rooms)
	}
	if stats.MaxConnections != 100 {
		t.Errorf("Expected max 100, got %d", stats.MaxConnections)
	}
}
