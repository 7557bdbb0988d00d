package signal

import "encoding/json"

// Client→server events
const (
	EvJoinRoom     = "join_room"
	EvAdmitted     = "admitted"
	EvDeny         = "deny"
	EvCallUser     = "call_user"
	EvMakeAnswer   = "make_answer"
	EvIceCandidate = "ice_candidate" // also server→client, sender implicit
)

// Server→client events
const (
	EvRoomJoined   = "room_joined"
	EvWaitForAdmit = "wait_for_admit"
	EvAdmitRequest = "admit_request"
	EvUserJoined   = "user_joined"
	EvDenied       = "denied"
	EvCallMade     = "call_made"
	EvAnswerMade   = "answer_made"
	EvPeerLeft     = "peer_left"
)

// Message is the wire envelope for every signaling frame, both directions.
// Data stays raw so the broker never inspects offer/answer/candidate bodies.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinRoomData struct {
	Email  string `json:"email"`
	RoomID string `json:"roomId"`
}

type roomJoinedData struct {
	RoomID  string `json:"roomId"`
	IsOwner bool   `json:"isOwner"`
}

type waitForAdmitData struct {
	RoomID string `json:"roomId"`
}

// admitRequestData notifies the owner of a waiting guest; the same shape
// carries the owner's admitted/deny decisions back.
type admitRequestData struct {
	RoomID string `json:"roomId"`
	Email  string `json:"email"`
}

type userJoinedData struct {
	Email string `json:"email"`
}

type deniedData struct {
	RoomID string `json:"roomId"`
}

type callUserData struct {
	Offer json.RawMessage `json:"offer"`
	Email string          `json:"email"`
}

type makeAnswerData struct {
	Answer json.RawMessage `json:"answer"`
	Email  string          `json:"email"`
}

type iceCandidateData struct {
	Candidate json.RawMessage `json:"candidate"`
	Email     string          `json:"email,omitempty"`
}

type peerLeftData struct {
	Email string `json:"email"`
}

// mustMessage builds an envelope from a payload struct. Marshaling our own
// payload types cannot fail.
func mustMessage(event string, v any) Message {
	raw, _ := json.Marshal(v)
	return Message{Event: event, Data: raw}
}
