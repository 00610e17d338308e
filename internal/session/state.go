package session

import (
	"github.com/pion/webrtc/v4"

	"github.com/Prince200510/mini-meet-prince/internal/media"
	"github.com/Prince200510/mini-meet-prince/internal/messenger"
)

// Phase is the negotiation phase of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingPeer
	PhaseOffering
	PhaseAnswering
	PhaseConnected
	PhaseDisconnected
	PhaseFailed
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingPeer:
		return "awaiting-peer"
	case PhaseOffering:
		return "offering"
	case PhaseAnswering:
		return "answering"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseFailed:
		return "failed"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SignalingState tracks the offer/answer exchange.
type SignalingState int

const (
	SignalingNone SignalingState = iota
	SignalingOfferSent
	SignalingOfferReceived
	SignalingStable
)

func (s SignalingState) String() string {
	switch s {
	case SignalingNone:
		return "none"
	case SignalingOfferSent:
		return "offer-sent"
	case SignalingOfferReceived:
		return "offer-received"
	case SignalingStable:
		return "stable"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of a session.
type Status struct {
	ID         string
	Room       string
	Local      string
	Peer       string
	Phase      Phase
	Signaling  SignalingState
	Gathering  webrtc.ICEGatheringState
	Transport  webrtc.PeerConnectionState
	PeerLeft   bool
	Channel    bool
	AudioOff   bool
	VideoOff   bool
	Generation uint64
}

// Departed reports whether the peer is gone for good: the transport is
// down and the relay has confirmed the departure.
func (s Status) Departed() bool {
	return s.PeerLeft && (s.Phase == PhaseDisconnected || s.Phase == PhaseFailed)
}

// Event is emitted on Session.Events. The types below are the only
// implementations.
type Event interface {
	isEvent()
}

// StateChanged reports a phase transition.
type StateChanged struct {
	Phase  Phase
	Status Status
}

// LocalMedia reports that local capture is running.
type LocalMedia struct {
	Stream *media.Stream
}

// RemoteMedia carries the peer's track, or nil when it went away.
type RemoteMedia struct {
	Track *RemoteTrack
}

// ChannelReady reports that the direct channel opened.
type ChannelReady struct {
	Channel messenger.DataChannel
}

// ChannelLost reports that the direct channel closed or was detached.
type ChannelLost struct{}

// Notice carries a non-fatal error for the user.
type Notice struct {
	Err error
}

func (StateChanged) isEvent() {}
func (LocalMedia) isEvent()   {}
func (RemoteMedia) isEvent()  {}
func (ChannelReady) isEvent() {}
func (ChannelLost) isEvent()  {}
func (Notice) isEvent()       {}
