package signal

import "sync"

// Conn is the broker's view of one participant's live transport session.
// Implementations must make Send non-blocking; a slow consumer loses frames
// rather than stalling the broker.
type Conn interface {
	// ID is the ephemeral per-connection handle assigned at connect time
	ID() string
	// Send queues a frame for delivery, dropping it if the buffer is full
	Send(m Message)
	// Kick closes the connection with a policy reason (e.g. superseded by
	// a re-registration of the same identity)
	Kick(reason string)
}

// Registry is the bidirectional identity↔connection map. Both directions
// mutate under one lock so they can never disagree.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Conn   // identity → live connection
	byConn map[string]string // connection id → identity
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]Conn{}, byConn: map[string]string{}}
}

// Register binds identity↔conn in both directions, overwriting any prior
// binding for that identity or that connection. It returns the connection
// displaced by an identity rebind, if any, so the caller can invalidate it.
func (r *Registry) Register(identity string, c Conn) (displaced Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byID[identity]; ok && old.ID() != c.ID() {
		delete(r.byConn, old.ID())
		displaced = old
	}
	// The connection may have been bound to a different identity before
	if prev, ok := r.byConn[c.ID()]; ok && prev != identity {
		delete(r.byID, prev)
	}

	r.byID[identity] = c
	r.byConn[c.ID()] = identity
	return displaced
}

// Resolve returns the live connection for an identity. Absence is not an
// error; the recipient is simply unreachable.
func (r *Registry) Resolve(identity string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[identity]
	return c, ok
}

// Identity returns the identity bound to a connection id, if any
func (r *Registry) Identity(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConn[connID]
	return id, ok
}

// Unregister removes both directions of a connection's binding and reports
// the identity that was bound. Unknown connections are a no-op.
func (r *Registry) Unregister(connID string) (identity string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok = r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	// Only unbind the identity if it still points at this connection; a
	// re-registration may already have moved it to a newer handle
	if cur, bound := r.byID[identity]; bound && cur.ID() == connID {
		delete(r.byID, identity)
	}
	return identity, true
}

// Len reports the number of registered identities
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
