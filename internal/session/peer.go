package session

import (
	"errors"
	"io"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/Prince200510/mini-meet-prince/internal/config"
	"github.com/Prince200510/mini-meet-prince/internal/logging"
	"github.com/Prince200510/mini-meet-prince/internal/messenger"
)

// RemoteTrack describes a track received from the peer.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     webrtc.RTPCodecType
}

// TrackSender is the outgoing side of a local track.
type TrackSender interface {
	ReplaceTrack(webrtc.TrackLocal) error
}

// PeerConnection is the part of a WebRTC peer connection a session drives.
// Callbacks may fire on any goroutine.
type PeerConnection interface {
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer and sets it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	// RestartICE creates an ICE restart offer on the negotiated connection
	// and sets it as the local description.
	RestartICE() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	CreateDataChannel(label string) (messenger.DataChannel, error)
	AddTrack(webrtc.TrackLocal) (TrackSender, error)

	// OnICECandidate reports local candidates; nil marks the end of gathering.
	OnICECandidate(func(*webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnDataChannel(func(messenger.DataChannel))
	OnTrack(func(RemoteTrack))
	Close() error
}

// PeerFactory builds a fresh peer connection.
type PeerFactory func() (PeerConnection, error)

// restrictedNetwork forces relay candidates on VPN and CGNAT hosts when a
// TURN server is available.
var restrictedNetwork = config.RestrictedNetwork

// ICEConfiguration builds the ICE server list and transport policy.
func ICEConfiguration(cfg *config.Config) webrtc.Configuration {
	iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || restrictedNetwork()) {
		policy = webrtc.ICETransportPolicyRelay
	}
	return webrtc.Configuration{ICEServers: iceServers, ICETransportPolicy: policy}
}

// NewAPI builds a pion API with the default codecs. pion's own logging is
// routed into logger.
func NewAPI(se webrtc.SettingEngine, logger *slog.Logger) (*webrtc.API, error) {
	se.LoggerFactory = logging.NewPionFactory(logger)

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, NewError("register codecs", err)
	}
	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}

// NewPeerFactory returns a factory for pion peer connections configured
// from cfg.
func NewPeerFactory(cfg *config.Config, logger *slog.Logger) (PeerFactory, error) {
	api, err := NewAPI(webrtc.SettingEngine{}, logger)
	if err != nil {
		return nil, err
	}
	return PeerFactoryFor(api, ICEConfiguration(cfg)), nil
}

// PeerFactoryFor returns a factory creating peer connections from api.
func PeerFactoryFor(api *webrtc.API, conf webrtc.Configuration) PeerFactory {
	return func() (PeerConnection, error) {
		pc, err := api.NewPeerConnection(conf)
		if err != nil {
			return nil, NewError("create peer connection", err)
		}
		return &pionPeer{pc: pc}, nil
	}
}

// pionPeer adapts *webrtc.PeerConnection to PeerConnection.
type pionPeer struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeer) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, NewError("create offer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, NewError("set local description", err)
	}
	return *p.pc.LocalDescription(), nil
}

func (p *pionPeer) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, NewError("create answer", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, NewError("set local description", err)
	}
	return *p.pc.LocalDescription(), nil
}

func (p *pionPeer) RestartICE() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		return webrtc.SessionDescription{}, NewError("create restart offer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, NewError("set local description", err)
	}
	return *p.pc.LocalDescription(), nil
}

func (p *pionPeer) SetRemoteDescription(d webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(d); err != nil {
		return NewError("set remote description", err)
	}
	return nil
}

func (p *pionPeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	if err := p.pc.AddICECandidate(c); err != nil {
		return NewError("add ice candidate", err)
	}
	return nil
}

func (p *pionPeer) CreateDataChannel(label string) (messenger.DataChannel, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, NewError("create data channel", err)
	}
	return dc, nil
}

func (p *pionPeer) AddTrack(track webrtc.TrackLocal) (TrackSender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, NewError("add track", err)
	}
	// RTCP must be drained for interceptors to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return sender, nil
}

func (p *pionPeer) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&init)
	})
}

func (p *pionPeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(fn)
}

func (p *pionPeer) OnDataChannel(fn func(messenger.DataChannel)) {
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) { fn(dc) })
}

func (p *pionPeer) OnTrack(fn func(RemoteTrack)) {
	p.pc.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(RemoteTrack{ID: t.ID(), StreamID: t.StreamID(), Kind: t.Kind()})
		go drain(t)
	})
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

// drain discards remote packets until the track ends.
func drain(t *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := t.Read(buf); err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("remote track ended", "track", t.ID(), "error", err)
			}
			return
		}
	}
}
