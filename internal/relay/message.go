package relay

import "encoding/json"

// Message defines the structure for all client-to-relay and
// relay-to-client websocket frames. Payload is opaque to the relay.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// client is the connection that sent the frame.
	// It's used internally by the Hub and not sent over JSON.
	client *Client `json:"-"`
}

// Frame types.
const (
	MessageTypeWelcome    = "welcome"
	MessageTypeCreateRoom = "create-room"
	MessageTypeJoinRoom   = "join-room"
	MessageTypeJoined     = "joined"
	MessageTypeLeaveRoom  = "leave-room"
	MessageTypePeerJoined = "peer-joined"
	MessageTypePeerLeft   = "peer-left"
	MessageTypeOffer      = "offer"
	MessageTypeAnswer     = "answer"
	MessageTypeCandidate  = "candidate"
	MessageTypeFallback   = "wb-fallback"
	MessageTypeError      = "error"
)

// JoinedPayload is attached to a joined frame.
type JoinedPayload struct {
	// Peers are the other members present when the join happened.
	Peers []string `json:"peers"`
}

// ErrorPayload is attached to an error frame.
type ErrorPayload struct {
	Error string `json:"error"`
}

// IsRelayed reports whether frames of this type are fanned out to the
// other members of a room.
func IsRelayed(t string) bool {
	switch t {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeCandidate, MessageTypeFallback:
		return true
	}
	return false
}

func errorFrame(text string) *Message {
	b, _ := json.Marshal(ErrorPayload{Error: text})
	return &Message{Type: MessageTypeError, Payload: b}
}
