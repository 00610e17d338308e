package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/Prince200510/mini-meet-prince/internal/relay"
)

// ErrMalformedFrame is returned by Decode for frames whose payload does not
// match their type.
var ErrMalformedFrame = errors.New("malformed signaling frame")

// Event is a decoded relay frame. The concrete types below are the only
// implementations.
type Event interface {
	isEvent()
}

// Welcome carries the connection id the relay assigned to us.
type Welcome struct{ ID string }

// Joined acknowledges our join and lists the members already present.
type Joined struct {
	Room  string
	Peers []string
}

// PeerJoined announces another member.
type PeerJoined struct{ Room, Peer string }

// PeerLeft announces that a member disconnected or left.
type PeerLeft struct{ Room, Peer string }

// Offer is a relayed session description offer. Restart marks an ICE
// restart on the connection that is already negotiated.
type Offer struct {
	Room, From string
	SDP        webrtc.SessionDescription
	Restart    bool
}

// Answer is a relayed session description answer.
type Answer struct {
	Room, From string
	SDP        webrtc.SessionDescription
}

// Candidate is a relayed ICE candidate.
type Candidate struct {
	Room, From string
	Init       webrtc.ICECandidateInit
}

// Fallback is an application message routed through the relay.
type Fallback struct {
	Room, From string
	Payload    json.RawMessage
}

// ServerError is an error frame from the relay.
type ServerError struct{ Text string }

func (Welcome) isEvent()     {}
func (Joined) isEvent()      {}
func (PeerJoined) isEvent()  {}
func (PeerLeft) isEvent()    {}
func (Offer) isEvent()       {}
func (Answer) isEvent()      {}
func (Candidate) isEvent()   {}
func (Fallback) isEvent()    {}
func (ServerError) isEvent() {}

// Decode turns a relay frame into a typed Event.
func Decode(m *Message) (Event, error) {
	switch m.Type {
	case relay.MessageTypeWelcome:
		return Welcome{ID: m.From}, nil

	case relay.MessageTypeJoined:
		var p relay.JoinedPayload
		if len(m.Payload) > 0 {
			if err := json.Unmarshal(m.Payload, &p); err != nil {
				return nil, fmt.Errorf("%w: joined: %v", ErrMalformedFrame, err)
			}
		}
		return Joined{Room: m.RoomID, Peers: p.Peers}, nil

	case relay.MessageTypePeerJoined:
		return PeerJoined{Room: m.RoomID, Peer: m.From}, nil

	case relay.MessageTypePeerLeft:
		return PeerLeft{Room: m.RoomID, Peer: m.From}, nil

	case relay.MessageTypeOffer, relay.MessageTypeAnswer:
		var d description
		if err := json.Unmarshal(m.Payload, &d); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, m.Type, err)
		}
		sdp := d.SessionDescription
		if sdp.SDP == "" {
			return nil, fmt.Errorf("%w: %s: empty sdp", ErrMalformedFrame, m.Type)
		}
		if m.Type == relay.MessageTypeOffer {
			sdp.Type = webrtc.SDPTypeOffer
			return Offer{Room: m.RoomID, From: m.From, SDP: sdp, Restart: d.Restart}, nil
		}
		sdp.Type = webrtc.SDPTypeAnswer
		return Answer{Room: m.RoomID, From: m.From, SDP: sdp}, nil

	case relay.MessageTypeCandidate:
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal(m.Payload, &init); err != nil {
			return nil, fmt.Errorf("%w: candidate: %v", ErrMalformedFrame, err)
		}
		return Candidate{Room: m.RoomID, From: m.From, Init: init}, nil

	case relay.MessageTypeFallback:
		return Fallback{Room: m.RoomID, From: m.From, Payload: m.Payload}, nil

	case relay.MessageTypeError:
		var p relay.ErrorPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil || p.Error == "" {
			return ServerError{Text: "Unknown error from server"}, nil
		}
		return ServerError{Text: p.Error}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, m.Type)
	}
}

// JoinRoom builds a join-room frame.
func JoinRoom(room string) *Message {
	return &Message{Type: relay.MessageTypeJoinRoom, RoomID: room}
}

// CreateRoom builds a create-room frame.
func CreateRoom() *Message {
	return &Message{Type: relay.MessageTypeCreateRoom}
}

// LeaveRoom builds a leave-room frame.
func LeaveRoom(room string) *Message {
	return &Message{Type: relay.MessageTypeLeaveRoom, RoomID: room}
}

// Description builds an offer or answer frame.
func Description(room string, sdp webrtc.SessionDescription) (*Message, error) {
	t := relay.MessageTypeOffer
	if sdp.Type == webrtc.SDPTypeAnswer {
		t = relay.MessageTypeAnswer
	}
	b, err := json.Marshal(sdp)
	if err != nil {
		return nil, err
	}
	return &Message{Type: t, RoomID: room, Payload: b}, nil
}

// description is the offer/answer payload.
type description struct {
	webrtc.SessionDescription
	Restart bool `json:"restart,omitempty"`
}

// RestartOffer builds an offer frame for an ICE restart.
func RestartOffer(room string, sdp webrtc.SessionDescription) (*Message, error) {
	b, err := json.Marshal(description{SessionDescription: sdp, Restart: true})
	if err != nil {
		return nil, err
	}
	return &Message{Type: relay.MessageTypeOffer, RoomID: room, Payload: b}, nil
}

// CandidateFrame builds a candidate frame.
func CandidateFrame(room string, init webrtc.ICECandidateInit) (*Message, error) {
	b, err := json.Marshal(init)
	if err != nil {
		return nil, err
	}
	return &Message{Type: relay.MessageTypeCandidate, RoomID: room, Payload: b}, nil
}

// FallbackFrame builds a wb-fallback frame around an encoded app message.
func FallbackFrame(room string, payload json.RawMessage) *Message {
	return &Message{Type: relay.MessageTypeFallback, RoomID: room, Payload: payload}
}
