package relay

import (
	"errors"
	"sync"
)

var errUnknownConnection = errors.New("unknown connection id")

// Member is one entry of a group-room snapshot.
type Member struct {
	ConnID     string
	EmployeeID int64
	client     *Client
}

// Registry tracks every live connection and the groups it has joined. It is
// the only mutable shared state in the relay; a single RWMutex is enough at
// the connection counts this server sees.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Client)}
}

// Register adds a new, not-yet-authenticated connection.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

// Authenticate attaches an employee identity to the connection. Idempotent.
func (r *Registry) Authenticate(connID string, employeeID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return errUnknownConnection
	}
	c.employeeID = employeeID
	return nil
}

// EmployeeID returns the authenticated identity of the connection, or false
// if the connection is unknown or has not authenticated yet.
func (r *Registry) EmployeeID(connID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok || c.employeeID == 0 {
		return 0, false
	}
	return c.employeeID, true
}

// Join adds the group to the connection's joined set. The connection must be
// authenticated first.
func (r *Registry) Join(connID string, groupID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return errUnknownConnection
	}
	if c.employeeID == 0 {
		return errors.New("connection is not authenticated")
	}
	c.groups[groupID] = struct{}{}
	return nil
}

// Leave removes the group from the connection's joined set. Leaving a group
// that was never joined is a no-op.
func (r *Registry) Leave(connID string, groupID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return errUnknownConnection
	}
	delete(c.groups, groupID)
	return nil
}

// Unregister removes the connection and shuts its send queue. Idempotent:
// the second call on the same id is a no-op.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	r.mu.Unlock()

	if ok {
		c.close()
	}
}

// MembersOf returns a snapshot of the authenticated connections currently
// joined to the group. The snapshot is taken under the read lock, so it never
// observes a connection mid-removal; it must not be cached across broadcasts.
func (r *Registry) MembersOf(groupID int64) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []Member
	for id, c := range r.conns {
		if c.employeeID == 0 {
			continue
		}
		if _, joined := c.groups[groupID]; joined {
			members = append(members, Member{ConnID: id, EmployeeID: c.employeeID, client: c})
		}
	}
	return members
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
