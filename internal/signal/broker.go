package signal

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/Faisal123786/MeetVideoCallP2P/pkg/metrics"
)

// inbound pairs a frame with the connection that sent it
type inbound struct {
	conn Conn
	msg  Message
}

// Broker is the signaling actor: admission control, negotiation relay, and
// session lifecycle in one place. Run drains all three channels in a single
// goroutine, so every handler below mutates shared state as one atomic step
// and per-room admissions are observed in arrival order.
type Broker struct {
	log  *slog.Logger
	sink EventSink

	registry *Registry
	rooms    *Table

	attach   chan Conn
	detach   chan Conn
	incoming chan inbound
}

// NewBroker wires the broker with its state tables. A nil sink disables the
// room-event mirror.
func NewBroker(logger *slog.Logger, sink EventSink) *Broker {
	if sink == nil {
		sink = NopSink{}
	}
	return &Broker{
		log:      logger,
		sink:     sink,
		registry: NewRegistry(),
		rooms:    NewTable(),
		attach:   make(chan Conn, 64),
		detach:   make(chan Conn, 64),
		incoming: make(chan inbound, 256),
	}
}

// Registry exposes the connection registry for transport wiring
func (b *Broker) Registry() *Registry { return b.registry }

// Rooms exposes the room table for the read-only rooms API
func (b *Broker) Rooms() *Table { return b.rooms }

// Attach hands a freshly accepted connection to the broker loop
func (b *Broker) Attach(c Conn) { b.attach <- c }

// Detach reports a transport disconnect; this is the only departure signal
func (b *Broker) Detach(c Conn) { b.detach <- c }

// Dispatch queues an inbound frame for serialized processing
func (b *Broker) Dispatch(c Conn, m Message) {
	b.incoming <- inbound{conn: c, msg: m}
}

// Run processes events until ctx is cancelled
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case c := <-b.attach:
			b.log.Debug("broker.conn.attached", "conn", c.ID())
			metrics.ConnectionsActive.Inc()

		case c := <-b.detach:
			b.handleDetach(c)
			metrics.ConnectionsActive.Dec()

		case in := <-b.incoming:
			b.handleEvent(in.conn, in.msg)

		case <-ctx.Done():
			return
		}
	}
}

// handleEvent is one serialized protocol step. Malformed payloads are
// logged and dropped; the connection stays up.
func (b *Broker) handleEvent(c Conn, m Message) {
	metrics.EventsTotal.WithLabelValues(m.Event).Inc()

	switch m.Event {
	case EvJoinRoom:
		var d joinRoomData
		if err := json.Unmarshal(m.Data, &d); err != nil || d.Email == "" || d.RoomID == "" {
			b.log.Debug("broker.join.malformed", "conn", c.ID())
			return
		}
		b.handleJoin(c, d.Email, d.RoomID)

	case EvAdmitted:
		var d admitRequestData
		if err := json.Unmarshal(m.Data, &d); err != nil || d.Email == "" || d.RoomID == "" {
			b.log.Debug("broker.admit.malformed", "conn", c.ID())
			return
		}
		b.handleAdmit(c, d.RoomID, d.Email)

	case EvDeny:
		var d admitRequestData
		if err := json.Unmarshal(m.Data, &d); err != nil || d.Email == "" || d.RoomID == "" {
			b.log.Debug("broker.deny.malformed", "conn", c.ID())
			return
		}
		b.handleDeny(c, d.RoomID, d.Email)

	case EvCallUser:
		var d callUserData
		if err := json.Unmarshal(m.Data, &d); err != nil || d.Email == "" {
			return
		}
		b.relay(c, d.Email, func(sender string) Message {
			return mustMessage(EvCallMade, callUserData{Offer: d.Offer, Email: sender})
		})

	case EvMakeAnswer:
		var d makeAnswerData
		if err := json.Unmarshal(m.Data, &d); err != nil || d.Email == "" {
			return
		}
		b.relay(c, d.Email, func(sender string) Message {
			return mustMessage(EvAnswerMade, makeAnswerData{Answer: d.Answer, Email: sender})
		})

	case EvIceCandidate:
		var d iceCandidateData
		if err := json.Unmarshal(m.Data, &d); err != nil || d.Email == "" {
			return
		}
		// Candidates are delivered without the sender attached; by this
		// point the two parties already know each other
		b.relay(c, d.Email, func(string) Message {
			return mustMessage(EvIceCandidate, iceCandidateData{Candidate: d.Candidate})
		})

	default:
		b.log.Debug("broker.event.unknown", "event", m.Event, "conn", c.ID())
	}
}

// handleJoin runs the admission path for one (identity, room) request
func (b *Broker) handleJoin(c Conn, email, roomID string) {
	// Bind identity↔connection first; a reconnecting identity displaces
	// its old handle, which is closed rather than left as a stale route
	if displaced := b.registry.Register(email, c); displaced != nil {
		b.log.Info("broker.conn.superseded", "email", email, "old", displaced.ID(), "new", c.ID())
		displaced.Kick("superseded by a newer connection")
	}

	// One room per identity: joining somewhere else vacates the old seat,
	// and a seated guest re-joining starts a fresh admission request. Only
	// an owner re-joining its own room keeps its place.
	if prev, ok := b.rooms.RoomOf(email); ok {
		prevOwner, _ := b.rooms.Owner(prev)
		if prev != roomID || prevOwner != email {
			b.depart(email, prev)
		}
	}

	if b.rooms.ClaimOwner(roomID, email) {
		b.log.Info("broker.room.created", "room", roomID, "owner", email)
		c.Send(mustMessage(EvRoomJoined, roomJoinedData{RoomID: roomID, IsOwner: true}))
		b.sink.Publish(RoomEvent{Room: roomID, Type: RoomCreated, Identity: email, At: time.Now()})
		metrics.RoomsActive.Set(float64(b.rooms.Len()))
		return
	}

	owner, _ := b.rooms.Owner(roomID)
	if owner == email {
		// The owner re-joining its own room (e.g. after a page reload)
		// keeps its seat and owner flag
		c.Send(mustMessage(EvRoomJoined, roomJoinedData{RoomID: roomID, IsOwner: true}))
		return
	}

	b.rooms.AddPending(roomID, email)
	c.Send(mustMessage(EvWaitForAdmit, waitForAdmitData{RoomID: roomID}))
	b.sink.Publish(RoomEvent{Room: roomID, Type: GuestWaiting, Identity: email, At: time.Now()})

	// Notify the owner's live connection; if the owner is unreachable the
	// request simply stays parked until they reconnect and re-admit
	if oc, ok := b.registry.Resolve(owner); ok {
		oc.Send(mustMessage(EvAdmitRequest, admitRequestData{RoomID: roomID, Email: email}))
	} else {
		b.log.Debug("broker.admit_request.dropped", "room", roomID, "owner", owner)
	}
}

// handleAdmit seats a waiting guest after the owner's explicit decision
func (b *Broker) handleAdmit(c Conn, roomID, email string) {
	if !b.isOwner(c, roomID) {
		b.log.Debug("broker.admit.not_owner", "room", roomID, "conn", c.ID())
		return
	}
	if !b.rooms.TakePending(roomID, email) {
		// Admitting an identity that never asked creates no state
		b.log.Debug("broker.admit.not_pending", "room", roomID, "email", email)
		return
	}

	b.rooms.Seat(roomID, email)
	metrics.AdmissionsGranted.Inc()
	b.log.Info("broker.guest.admitted", "room", roomID, "email", email)
	b.sink.Publish(RoomEvent{Room: roomID, Type: GuestAdmitted, Identity: email, At: time.Now()})

	if gc, ok := b.registry.Resolve(email); ok {
		gc.Send(mustMessage(EvRoomJoined, roomJoinedData{RoomID: roomID, IsOwner: false}))
	}
	for _, member := range b.rooms.Members(roomID, email) {
		if mc, ok := b.registry.Resolve(member); ok {
			mc.Send(mustMessage(EvUserJoined, userJoinedData{Email: email}))
		}
	}
}

// handleDeny clears a pending request and tells the requester. Terminal for
// that request only; the guest may ask again.
func (b *Broker) handleDeny(c Conn, roomID, email string) {
	if !b.isOwner(c, roomID) {
		b.log.Debug("broker.deny.not_owner", "room", roomID, "conn", c.ID())
		return
	}
	if !b.rooms.TakePending(roomID, email) {
		return
	}

	metrics.AdmissionsDenied.Inc()
	b.log.Info("broker.guest.denied", "room", roomID, "email", email)
	b.sink.Publish(RoomEvent{Room: roomID, Type: GuestDenied, Identity: email, At: time.Now()})

	if gc, ok := b.registry.Resolve(email); ok {
		gc.Send(mustMessage(EvDenied, deniedData{RoomID: roomID}))
	}
}

// isOwner checks that the sending connection is the bound owner of roomID
func (b *Broker) isOwner(c Conn, roomID string) bool {
	owner, ok := b.rooms.Owner(roomID)
	if !ok {
		return false
	}
	sender, ok := b.registry.Identity(c.ID())
	return ok && sender == owner
}

// relay forwards a negotiation payload to target, stamping the resolved
// sender identity. Pure store-and-forward: an unreachable target or an
// unregistered sender drops the frame with no queueing or retries.
func (b *Broker) relay(c Conn, target string, build func(sender string) Message) {
	sender, ok := b.registry.Identity(c.ID())
	if !ok {
		metrics.RelaysDropped.Inc()
		return
	}
	tc, ok := b.registry.Resolve(target)
	if !ok {
		b.log.Debug("broker.relay.unreachable", "from", sender, "to", target)
		metrics.RelaysDropped.Inc()
		return
	}
	tc.Send(build(sender))
}

// handleDetach is the session lifecycle path: transport disconnect is the
// only departure signal in this protocol.
func (b *Broker) handleDetach(c Conn) {
	email, ok := b.registry.Unregister(c.ID())
	if !ok {
		// Connected but never joined anything
		b.log.Debug("broker.conn.detached", "conn", c.ID())
		return
	}
	b.log.Info("broker.peer.disconnected", "email", email, "conn", c.ID())

	if roomID, ok := b.rooms.RoomOf(email); ok {
		b.depart(email, roomID)
	}
}

// depart removes an identity from its room and notifies whoever remains
func (b *Broker) depart(email, roomID string) {
	dep, ok := b.rooms.Leave(email)
	if !ok {
		return
	}

	if dep.WasPending {
		// An abandoned wait leaves no trace
		return
	}

	left := mustMessage(EvPeerLeft, peerLeftData{Email: email})
	for _, member := range dep.Remaining {
		if mc, ok := b.registry.Resolve(member); ok {
			mc.Send(left)
		}
	}
	b.sink.Publish(RoomEvent{Room: roomID, Type: PeerDeparted, Identity: email, At: time.Now()})

	if dep.WasOwner {
		b.log.Info("broker.room.destroyed", "room", roomID, "owner", email)
		b.sink.Publish(RoomEvent{Room: roomID, Type: RoomDestroyed, Identity: email, At: time.Now()})
	}
	metrics.RoomsActive.Set(float64(b.rooms.Len()))
}
