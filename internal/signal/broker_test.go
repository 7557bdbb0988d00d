package signal

import (
	"encoding/json"
	"io"
	"testing"

	"log/slog"
)

// fakeConn records everything the broker delivers to one participant
type fakeConn struct {
	id     string
	msgs   []Message
	kicked string
}

func (f *fakeConn) ID() string         { return f.id }
func (f *fakeConn) Send(m Message)     { f.msgs = append(f.msgs, m) }
func (f *fakeConn) Kick(reason string) { f.kicked = reason }

func (f *fakeConn) last(t *testing.T) Message {
	t.Helper()
	if len(f.msgs) == 0 {
		t.Fatalf("conn %s: expected a delivered message", f.id)
	}
	return f.msgs[len(f.msgs)-1]
}

func decode[T any](t *testing.T, m Message) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(m.Data, &v); err != nil {
		t.Fatalf("decode %s payload: %v", m.Event, err)
	}
	return v
}

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBroker(logger, nil)
}

func join(b *Broker, c Conn, email, roomID string) {
	b.handleEvent(c, mustMessage(EvJoinRoom, joinRoomData{Email: email, RoomID: roomID}))
}

func TestFirstJoinBecomesOwner(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}

	join(b, alice, "alice@x", "R1")

	m := alice.last(t)
	if m.Event != EvRoomJoined {
		t.Fatalf("join: expected %s got %s", EvRoomJoined, m.Event)
	}
	d := decode[roomJoinedData](t, m)
	if !d.IsOwner || d.RoomID != "R1" {
		t.Fatalf("join: expected owner seat in R1, got %+v", d)
	}
	if owner, ok := b.rooms.Owner("R1"); !ok || owner != "alice@x" {
		t.Fatalf("join: owner not recorded, got %q ok=%t", owner, ok)
	}
}

func TestSecondJoinWaitsAndOwnerNotified(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}
	bob := &fakeConn{id: "c2"}

	join(b, alice, "alice@x", "R1")
	join(b, bob, "bob@x", "R1")

	m := bob.last(t)
	if m.Event != EvWaitForAdmit {
		t.Fatalf("guest join: expected %s got %s", EvWaitForAdmit, m.Event)
	}
	if d := decode[waitForAdmitData](t, m); d.RoomID != "R1" {
		t.Fatalf("guest join: wrong room %q", d.RoomID)
	}

	om := alice.last(t)
	if om.Event != EvAdmitRequest {
		t.Fatalf("owner notify: expected %s got %s", EvAdmitRequest, om.Event)
	}
	od := decode[admitRequestData](t, om)
	if od.RoomID != "R1" || od.Email != "bob@x" {
		t.Fatalf("owner notify: got %+v", od)
	}
	// Ownership unchanged
	if owner, _ := b.rooms.Owner("R1"); owner != "alice@x" {
		t.Fatalf("ownership moved to %q", owner)
	}
}

// The full two-party handshake: admission, offer, answer, candidate
func TestAdmissionAndNegotiationRoundTrip(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}
	bob := &fakeConn{id: "c2"}

	join(b, alice, "alice@x", "R1")
	join(b, bob, "bob@x", "R1")

	// Owner admits bob
	b.handleEvent(alice, mustMessage(EvAdmitted, admitRequestData{RoomID: "R1", Email: "bob@x"}))

	bm := bob.last(t)
	if bm.Event != EvRoomJoined {
		t.Fatalf("admit: expected %s got %s", EvRoomJoined, bm.Event)
	}
	if d := decode[roomJoinedData](t, bm); d.IsOwner || d.RoomID != "R1" {
		t.Fatalf("admit: guest seat wrong: %+v", d)
	}
	am := alice.last(t)
	if am.Event != EvUserJoined {
		t.Fatalf("admit broadcast: expected %s got %s", EvUserJoined, am.Event)
	}
	if d := decode[userJoinedData](t, am); d.Email != "bob@x" {
		t.Fatalf("admit broadcast: got %+v", d)
	}

	// Guest sends the offer, owner receives call_made with sender attached
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	b.handleEvent(bob, mustMessage(EvCallUser, callUserData{Offer: offer, Email: "alice@x"}))

	cm := alice.last(t)
	if cm.Event != EvCallMade {
		t.Fatalf("offer relay: expected %s got %s", EvCallMade, cm.Event)
	}
	cd := decode[callUserData](t, cm)
	if cd.Email != "bob@x" || string(cd.Offer) != string(offer) {
		t.Fatalf("offer relay: got %+v", cd)
	}

	// Owner answers
	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	b.handleEvent(alice, mustMessage(EvMakeAnswer, makeAnswerData{Answer: answer, Email: "bob@x"}))

	an := bob.last(t)
	if an.Event != EvAnswerMade {
		t.Fatalf("answer relay: expected %s got %s", EvAnswerMade, an.Event)
	}
	ad := decode[makeAnswerData](t, an)
	if ad.Email != "alice@x" || string(ad.Answer) != string(answer) {
		t.Fatalf("answer relay: got %+v", ad)
	}

	// Candidate flows without a sender identity attached
	cand := json.RawMessage(`{"candidate":"candidate:1 1 udp"}`)
	b.handleEvent(bob, mustMessage(EvIceCandidate, iceCandidateData{Candidate: cand, Email: "alice@x"}))

	ic := alice.last(t)
	if ic.Event != EvIceCandidate {
		t.Fatalf("candidate relay: expected %s got %s", EvIceCandidate, ic.Event)
	}
	id := decode[iceCandidateData](t, ic)
	if id.Email != "" || string(id.Candidate) != string(cand) {
		t.Fatalf("candidate relay: got %+v", id)
	}
}

func TestAdmitNeverRequestedIsNoOp(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}
	join(b, alice, "alice@x", "R1")
	sent := len(alice.msgs)

	b.handleEvent(alice, mustMessage(EvAdmitted, admitRequestData{RoomID: "R1", Email: "ghost@x"}))

	if len(alice.msgs) != sent {
		t.Fatalf("admit ghost: unexpected delivery %+v", alice.msgs[sent:])
	}
	if got := b.rooms.Members("R1", ""); len(got) != 1 {
		t.Fatalf("admit ghost: members = %v", got)
	}
}

func TestAdmitFromNonOwnerIgnored(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}
	bob := &fakeConn{id: "c2"}
	eve := &fakeConn{id: "c3"}

	join(b, alice, "alice@x", "R1")
	join(b, bob, "bob@x", "R1")
	join(b, eve, "eve@x", "R1")

	b.handleEvent(eve, mustMessage(EvAdmitted, admitRequestData{RoomID: "R1", Email: "bob@x"}))

	for _, m := range bob.msgs {
		if m.Event == EvRoomJoined {
			t.Fatalf("non-owner admit seated the guest")
		}
	}
}

func TestDenyDeliversDeniedAndClearsPending(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}
	bob := &fakeConn{id: "c2"}

	join(b, alice, "alice@x", "R1")
	join(b, bob, "bob@x", "R1")

	b.handleEvent(alice, mustMessage(EvDeny, admitRequestData{RoomID: "R1", Email: "bob@x"}))

	m := bob.last(t)
	if m.Event != EvDenied {
		t.Fatalf("deny: expected %s got %s", EvDenied, m.Event)
	}
	if d := decode[deniedData](t, m); d.RoomID != "R1" {
		t.Fatalf("deny: wrong room %q", d.RoomID)
	}

	// Terminal for that request: a later admit finds nothing pending
	sent := len(bob.msgs)
	b.handleEvent(alice, mustMessage(EvAdmitted, admitRequestData{RoomID: "R1", Email: "bob@x"}))
	if len(bob.msgs) != sent {
		t.Fatalf("admit after deny: unexpected delivery")
	}

	// But the guest may ask again
	join(b, bob, "bob@x", "R1")
	if bob.last(t).Event != EvWaitForAdmit {
		t.Fatalf("re-join after deny: expected %s got %s", EvWaitForAdmit, bob.last(t).Event)
	}
}

func TestRelayToUnknownIdentityDropped(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}
	join(b, alice, "alice@x", "R1")
	sent := len(alice.msgs)

	b.handleEvent(alice, mustMessage(EvCallUser, callUserData{
		Offer: json.RawMessage(`{}`), Email: "nobody@x",
	}))

	if len(alice.msgs) != sent {
		t.Fatalf("relay to unknown: sender observed an effect")
	}
}

func TestRelayFromUnregisteredSenderDropped(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}
	stranger := &fakeConn{id: "c9"}
	join(b, alice, "alice@x", "R1")
	sent := len(alice.msgs)

	b.handleEvent(stranger, mustMessage(EvCallUser, callUserData{
		Offer: json.RawMessage(`{}`), Email: "alice@x",
	}))

	if len(alice.msgs) != sent {
		t.Fatalf("relay from stranger: delivered %+v", alice.msgs[sent:])
	}
}

func TestOwnerUnreachableRequestStaysParked(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}
	bob := &fakeConn{id: "c2"}
	join(b, alice, "alice@x", "R1")

	// Transport dropped but the detach has not been processed yet
	b.registry.Unregister(alice.id)

	join(b, bob, "bob@x", "R1")
	if bob.last(t).Event != EvWaitForAdmit {
		t.Fatalf("expected guest parked, got %s", bob.last(t).Event)
	}
}

func TestGuestDisconnectWhileWaitingClearsPending(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}
	bob := &fakeConn{id: "c2"}

	join(b, alice, "alice@x", "R1")
	join(b, bob, "bob@x", "R1")
	b.handleDetach(bob)

	sent := len(bob.msgs)
	b.handleEvent(alice, mustMessage(EvAdmitted, admitRequestData{RoomID: "R1", Email: "bob@x"}))
	if len(bob.msgs) != sent {
		t.Fatalf("admit after abandon: delivered %+v", bob.msgs[sent:])
	}
	// The abandoned wait must not have held a seat
	if got := b.rooms.Members("R1", ""); len(got) != 1 {
		t.Fatalf("members after abandon = %v", got)
	}
}

func TestGuestDisconnectNotifiesOwner(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}
	bob := &fakeConn{id: "c2"}

	join(b, alice, "alice@x", "R1")
	join(b, bob, "bob@x", "R1")
	b.handleEvent(alice, mustMessage(EvAdmitted, admitRequestData{RoomID: "R1", Email: "bob@x"}))

	b.handleDetach(bob)

	m := alice.last(t)
	if m.Event != EvPeerLeft {
		t.Fatalf("guest leave: expected %s got %s", EvPeerLeft, m.Event)
	}
	if d := decode[peerLeftData](t, m); d.Email != "bob@x" {
		t.Fatalf("guest leave: got %+v", d)
	}
	// The owner keeps the room and its seat
	if owner, ok := b.rooms.Owner("R1"); !ok || owner != "alice@x" {
		t.Fatalf("guest leave: owner lost, got %q ok=%t", owner, ok)
	}

	// No further relay can reach the departed guest
	sent := len(bob.msgs)
	b.handleEvent(alice, mustMessage(EvCallUser, callUserData{
		Offer: json.RawMessage(`{}`), Email: "bob@x",
	}))
	if len(bob.msgs) != sent {
		t.Fatalf("relay after disconnect reached the guest")
	}
}

func TestOwnerDisconnectTearsDownRoomWithoutTransfer(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}
	bob := &fakeConn{id: "c2"}

	join(b, alice, "alice@x", "R1")
	join(b, bob, "bob@x", "R1")
	b.handleEvent(alice, mustMessage(EvAdmitted, admitRequestData{RoomID: "R1", Email: "bob@x"}))

	b.handleDetach(alice)

	m := bob.last(t)
	if m.Event != EvPeerLeft {
		t.Fatalf("owner leave: expected %s got %s", EvPeerLeft, m.Event)
	}
	// No silent promotion: the room is gone, not reassigned
	if owner, ok := b.rooms.Owner("R1"); ok {
		t.Fatalf("owner leave: room reassigned to %q", owner)
	}

	// A fresh join claims fresh ownership
	carol := &fakeConn{id: "c3"}
	join(b, carol, "carol@x", "R1")
	if d := decode[roomJoinedData](t, carol.last(t)); !d.IsOwner {
		t.Fatalf("fresh claim after teardown: expected owner seat")
	}
}

func TestReconnectKicksDisplacedHandle(t *testing.T) {
	b := newTestBroker(t)
	old := &fakeConn{id: "c1"}
	neu := &fakeConn{id: "c2"}

	join(b, old, "alice@x", "R1")
	join(b, neu, "alice@x", "R1")

	if old.kicked == "" {
		t.Fatalf("reconnect: displaced handle not invalidated")
	}
	if d := decode[roomJoinedData](t, neu.last(t)); !d.IsOwner || d.RoomID != "R1" {
		t.Fatalf("reconnect: owner seat not restored, got %+v", d)
	}
	if c, _ := b.registry.Resolve("alice@x"); c != Conn(neu) {
		t.Fatalf("reconnect: identity still routed to the old handle")
	}
}

func TestJoinOtherRoomVacatesOldSeat(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}

	join(b, alice, "alice@x", "R1")
	join(b, alice, "alice@x", "R2")

	if _, ok := b.rooms.Owner("R1"); ok {
		t.Fatalf("old room survived its owner's move")
	}
	if owner, _ := b.rooms.Owner("R2"); owner != "alice@x" {
		t.Fatalf("new room owner = %q", owner)
	}
}

func TestMalformedPayloadIgnored(t *testing.T) {
	b := newTestBroker(t)
	alice := &fakeConn{id: "c1"}
	join(b, alice, "alice@x", "R1")
	sent := len(alice.msgs)

	b.handleEvent(alice, Message{Event: EvJoinRoom, Data: json.RawMessage(`{"email":42}`)})
	b.handleEvent(alice, Message{Event: EvAdmitted, Data: json.RawMessage(`not json`)})
	b.handleEvent(alice, Message{Event: EvCallUser, Data: json.RawMessage(`{}`)})
	b.handleEvent(alice, Message{Event: "made_up_event"})

	if len(alice.msgs) != sent {
		t.Fatalf("malformed input produced output: %+v", alice.msgs[sent:])
	}
	if owner, _ := b.rooms.Owner("R1"); owner != "alice@x" {
		t.Fatalf("malformed input corrupted room state")
	}
}

func TestDetachOfUnregisteredConnIsNoOp(t *testing.T) {
	b := newTestBroker(t)
	// Connected, never joined anything
	b.handleDetach(&fakeConn{id: "c1"})

	if b.rooms.Len() != 0 || b.registry.Len() != 0 {
		t.Fatalf("detach of stranger created state")
	}
}
