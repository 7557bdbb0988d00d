package signal

import "sync"

// Room holds one room's signaling state. The owner is set exactly once when
// the first participant claims the room and never reassigned while the room
// exists; pending admissions live here, not in the owner's client, so they
// survive an owner-side page reload.
type Room struct {
	ID      string
	Owner   string
	members map[string]struct{} // admitted identities, owner included
	pending map[string]struct{} // identities waiting on an admit decision
}

// Departure describes what Leave removed
type Departure struct {
	RoomID     string
	WasOwner   bool
	WasPending bool
	// Remaining admitted identities after the departure (empty when the
	// room was destroyed)
	Remaining []string
}

// RoomInfo is a read-only snapshot row for the rooms API
type RoomInfo struct {
	ID      string `json:"roomId"`
	Owner   string `json:"owner"`
	Members int    `json:"members"`
	Waiting int    `json:"waiting"`
}

// Table maps room ids to rooms and tracks which room each identity occupies.
// All mutations take the table lock so concurrent first-joins to the same
// room resolve to a single owner.
type Table struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	where map[string]string // identity → room id (seated or pending)
}

func NewTable() *Table {
	return &Table{rooms: map[string]*Room{}, where: map[string]string{}}
}

// room returns the entry for id, creating it if needed. Callers hold t.mu.
func (t *Table) room(id string) *Room {
	rm := t.rooms[id]
	if rm == nil {
		rm = &Room{ID: id, members: map[string]struct{}{}, pending: map[string]struct{}{}}
		t.rooms[id] = rm
	}
	return rm
}

// ClaimOwner atomically makes identity the owner of roomID if and only if
// the room has no owner. Exactly one of any set of concurrent claimants
// wins; everyone else gets false and takes the admission path.
func (t *Table) ClaimOwner(roomID, identity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rm := t.room(roomID)
	if rm.Owner != "" {
		return false
	}
	rm.Owner = identity
	rm.members[identity] = struct{}{}
	t.where[identity] = roomID
	return true
}

// Owner reports the room's owner identity, if the room exists and is owned
func (t *Table) Owner(roomID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rm := t.rooms[roomID]
	if rm == nil || rm.Owner == "" {
		return "", false
	}
	return rm.Owner, true
}

// AddPending parks identity in the room's admission queue
func (t *Table) AddPending(roomID, identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.room(roomID).pending[identity] = struct{}{}
	t.where[identity] = roomID
}

// TakePending consumes a pending entry, reporting whether the identity was
// actually waiting. Admitting (or denying) someone who never asked is a
// no-op and must not create room state.
func (t *Table) TakePending(roomID, identity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rm := t.rooms[roomID]
	if rm == nil {
		return false
	}
	if _, ok := rm.pending[identity]; !ok {
		return false
	}
	delete(rm.pending, identity)
	delete(t.where, identity)
	return true
}

// Seat adds an admitted identity to the room's delivery group
func (t *Table) Seat(roomID, identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rm := t.rooms[roomID]
	if rm == nil || rm.Owner == "" {
		return
	}
	rm.members[identity] = struct{}{}
	t.where[identity] = roomID
}

// Members returns the admitted identities of a room, excluding skip
func (t *Table) Members(roomID, skip string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rm := t.rooms[roomID]
	if rm == nil {
		return nil
	}
	out := make([]string, 0, len(rm.members))
	for id := range rm.members {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}

// RoomOf reports which room an identity occupies (seated or pending)
func (t *Table) RoomOf(identity string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.where[identity]
	return id, ok
}

// Leave removes identity from whatever room it occupies. A guest departure
// just frees the seat (the member count can never drop below the owner's
// seat); an owner departure destroys the room outright, pending set
// included — ownership is never transferred.
func (t *Table) Leave(identity string) (Departure, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	roomID, ok := t.where[identity]
	if !ok {
		return Departure{}, false
	}
	delete(t.where, identity)

	rm := t.rooms[roomID]
	if rm == nil {
		return Departure{}, false
	}

	dep := Departure{RoomID: roomID}
	if _, waiting := rm.pending[identity]; waiting {
		delete(rm.pending, identity)
		dep.WasPending = true
		return dep, true
	}

	delete(rm.members, identity)
	if rm.Owner == identity {
		dep.WasOwner = true
		for id := range rm.members {
			dep.Remaining = append(dep.Remaining, id)
			delete(t.where, id)
		}
		delete(t.rooms, roomID)
		return dep, true
	}

	for id := range rm.members {
		dep.Remaining = append(dep.Remaining, id)
	}
	return dep, true
}

// Snapshot returns a point-in-time view of every room
func (t *Table) Snapshot() []RoomInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RoomInfo, 0, len(t.rooms))
	for _, rm := range t.rooms {
		out = append(out, RoomInfo{
			ID:      rm.ID,
			Owner:   rm.Owner,
			Members: len(rm.members),
			Waiting: len(rm.pending),
		})
	}
	return out
}

// Len reports the number of live rooms
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}
