package realtime

import (
	"fmt"
	"sync"
	"time"
)

// Client holds information about a connected real-time subscriber
type Client struct {
	ID          string
	ConnectedAt time.Time

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}

	// identity is the tourist id the gateway authenticated on upgrade.
	// Empty for monitors, which only receive broadcasts.
	identity string

	mu            sync.RWMutex
	touristID     string
	lastHeardFrom time.Time
}

func newClient(id string, buffer int) *Client {
	now := time.Now()
	return &Client{
		ID:            id,
		ConnectedAt:   now,
		lastHeardFrom: now,
		send:          make(chan []byte, buffer),
		done:          make(chan struct{}),
	}
}

// TouristID returns the room the client has joined, if any
func (c *Client) TouristID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.touristID
}

// UpdateLastHeardFrom updates the last activity timestamp
func (c *Client) UpdateLastHeardFrom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHeardFrom = time.Now()
}

// LastHeardFrom returns the last activity timestamp
func (c *Client) LastHeardFrom() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHeardFrom
}

// enqueue queues a frame without blocking. It reports false when the
// client's buffer is full or the client is closed.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Registry tracks all active real-time clients and the tourist room each
// one has joined
type Registry struct {
	clients   map[string]*Client  // key: client id
	byTourist map[string][]string // key: tourist id, value: []client id
	mu        sync.RWMutex
	maxConns  int
}

// NewRegistry creates a new client registry
func NewRegistry(maxConnections int) *Registry {
	return &Registry{
		clients:   make(map[string]*Client),
		byTourist: make(map[string][]string),
		maxConns:  maxConnections,
	}
}

// Register adds a new client
func (r *Registry) Register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.clients) >= r.maxConns {
		return ErrMaxConnectionsReached
	}
	if _, exists := r.clients[c.ID]; exists {
		return fmt.Errorf("client ID %s already registered", c.ID)
	}

	r.clients[c.ID] = c
	if room := c.TouristID(); room != "" {
		r.byTourist[room] = append(r.byTourist[room], c.ID)
	}
	return nil
}

// Join moves a client into the given tourist's room
func (r *Registry) Join(clientID, touristID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.clients[clientID]
	if !exists {
		return fmt.Errorf("client ID %s not found", clientID)
	}

	c.mu.Lock()
	old := c.touristID
	c.touristID = touristID
	c.mu.Unlock()

	if old == touristID {
		return nil
	}
	r.leaveLocked(old, clientID)
	r.byTourist[touristID] = append(r.byTourist[touristID], clientID)
	return nil
}

// Unregister removes a client
func (r *Registry) Unregister(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.clients[clientID]
	if !exists {
		return fmt.Errorf("client ID %s not found", clientID)
	}

	r.leaveLocked(c.TouristID(), clientID)
	delete(r.clients, clientID)
	c.close()
	return nil
}

func (r *Registry) leaveLocked(touristID, clientID string) {
	ids, ok := r.byTourist[touristID]
	if !ok {
		return
	}
	for i, id := range ids {
		if id == clientID {
			r.byTourist[touristID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byTourist[touristID]) == 0 {
		delete(r.byTourist, touristID)
	}
}

// Get retrieves a client by ID
func (r *Registry) Get(clientID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.clients[clientID]
	return c, exists
}

// InRoom returns the clients that joined the tourist's room
func (r *Registry) InRoom(touristID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byTourist[touristID]
	out := make([]*Client, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.clients[id])
	}
	return out
}

// All returns every registered client
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// UpdateActivity updates the last heard from timestamp for a client
func (r *Registry) UpdateActivity(clientID string) error {
	r.mu.RLock()
	c, exists := r.clients[clientID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("client ID %s not found", clientID)
	}

	c.UpdateLastHeardFrom()
	return nil
}

// InactiveClients returns client IDs that haven't been heard from in the given duration
func (r *Registry) InactiveClients(timeout time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var inactive []string
	for id, c := range r.clients {
		if now.Sub(c.LastHeardFrom()) > timeout {
			inactive = append(inactive, id)
		}
	}
	return inactive
}

// Count returns the total number of active clients
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Stats returns statistics about the registry
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RegistryStats{
		TotalConnections: len(r.clients),
		Rooms:            len(r.byTourist),
		MaxConnections:   r.maxConns,
	}
}

// RegistryStats contains statistics about the registry
type RegistryStats struct {
	TotalConnections int `json:"totalConnections"`
	Rooms            int `json:"rooms"`
	MaxConnections   int `json:"maxConnections"`
}

var (
	ErrMaxConnectionsReached = &ConnectionError{"maximum connections reached"}
	ErrRoomNotPermitted      = &ConnectionError{"connection may not join this tourist's room"}
)

// ConnectionError represents a connection error
type ConnectionError struct {
	msg string
}

func (e *ConnectionError) Error() string {
	return e.msg
}
