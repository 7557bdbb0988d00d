package signal

import "time"

// Room lifecycle event types published to the mirror sink
const (
	RoomCreated   = "room_created"
	RoomDestroyed = "room_destroyed"
	GuestWaiting  = "guest_waiting"
	GuestAdmitted = "guest_admitted"
	GuestDenied   = "guest_denied"
	PeerDeparted  = "peer_departed"
)

// RoomEvent is a lifecycle record mirrored to external ops tooling. It is
// fire-and-forget and never load-bearing for signaling correctness.
type RoomEvent struct {
	Room     string    `json:"roomId"`
	Type     string    `json:"type"`
	Identity string    `json:"identity,omitempty"`
	At       time.Time `json:"at"`
}

// EventSink receives room lifecycle events. Publish must not block the
// broker loop.
type EventSink interface {
	Publish(ev RoomEvent)
}

// NopSink discards everything; used when no mirror is configured
type NopSink struct{}

func (NopSink) Publish(RoomEvent) {}
