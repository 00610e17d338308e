// Package session negotiates the peer connection for one room membership.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/Prince200510/mini-meet-prince/internal/media"
	"github.com/Prince200510/mini-meet-prince/internal/messenger"
	"github.com/Prince200510/mini-meet-prince/internal/signaling"
)

// Relay submits frames to the signaling relay. *signaling.Client
// satisfies it.
type Relay interface {
	Send(*signaling.Message) error
}

// Channels receives the direct data channel once one exists.
// *messenger.Messenger satisfies it.
type Channels interface {
	SetRoom(room string)
	Attach(dc messenger.DataChannel, peer string)
	Detach()
}

// Options configures a Session.
type Options struct {
	Relay    Relay
	Peers    PeerFactory
	Channels Channels
	Media    media.Source
	// Constraints selects the tracks StartMedia acquires.
	Constraints media.Constraints
	Logger      *slog.Logger
	// EventBuffer sizes the Events channel.
	EventBuffer int
}

// Session drives negotiation for one room. All state below the mutex is
// owned by the loop goroutine.
type Session struct {
	id       string
	relay    Relay
	peers    PeerFactory
	channels Channels
	source   media.Source
	want     media.Constraints
	log      *slog.Logger

	inputs chan input
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	statusMu sync.Mutex
	status   Status

	room        string
	local       string
	peer        string
	phase       Phase
	sigState    SignalingState
	gathering   webrtc.ICEGatheringState
	transport   webrtc.PeerConnectionState
	peerLeft    bool
	peerPresent bool
	left        bool

	pc        PeerConnection
	pcUsed    bool
	offerer   bool
	gen       uint64
	hasRemote bool
	pending   []webrtc.ICECandidateInit

	dc            messenger.DataChannel
	channelOpen   bool
	channelOpened bool

	mediaGen    uint64
	localStream *media.Stream
	audioSender TrackSender
	videoSender TrackSender
	audioOff    bool
	videoOff    bool
	screen      webrtc.TrackLocal
	remote      *RemoteTrack
}

// New starts a session loop. It runs until Leave is called or ctx ends.
func New(ctx context.Context, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buf := opts.EventBuffer
	if buf <= 0 {
		buf = 64
	}
	want := opts.Constraints
	if !want.Audio && !want.Video {
		want = media.Constraints{Audio: true, Video: true}
	}

	id := uuid.NewString()
	s := &Session{
		id:        id,
		relay:     opts.Relay,
		peers:     opts.Peers,
		channels:  opts.Channels,
		source:    opts.Media,
		want:      want,
		log:       logger.With("component", "session", "session", id[:8]),
		inputs:    make(chan input, 256),
		events:    make(chan Event, buf),
		done:      make(chan struct{}),
		gathering: webrtc.ICEGatheringStateNew,
		transport: webrtc.PeerConnectionStateNew,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.publish()
	go s.run()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Events delivers application-level events. It is closed when the loop exits.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed when the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status returns a snapshot of the session state.
func (s *Session) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// HandleEvent feeds a decoded relay frame to the session.
func (s *Session) HandleEvent(ev signaling.Event) {
	s.post(relayInput{ev: ev})
}

// Join enters room and waits for a peer.
func (s *Session) Join(room string) error {
	return s.call(func() error { return s.join(room) })
}

// Create asks the relay for a fresh room and joins it. The room id arrives
// with the joined frame and is reported through StateChanged.
func (s *Session) Create() error {
	return s.call(s.create)
}

// Rejoin starts over with a fresh peer connection after the peer left or
// the transport failed.
func (s *Session) Rejoin() error {
	return s.call(s.rejoin)
}

// Leave tears the session down and leaves the room. Later calls fail with
// ErrClosed.
func (s *Session) Leave() error {
	err := s.call(s.leave)
	<-s.done
	return err
}

// Close is Leave without the error.
func (s *Session) Close() {
	_ = s.Leave()
}

// StartMedia acquires local tracks in the background. They are added to
// the current peer connection if it has not negotiated yet, and to every
// later one.
func (s *Session) StartMedia(ctx context.Context) error {
	return s.call(func() error { return s.startMedia(ctx) })
}

// ShareScreen sends track in place of the camera.
func (s *Session) ShareScreen(track webrtc.TrackLocal) error {
	return s.call(func() error { return s.shareScreen(track) })
}

// StopScreenShare restores the camera track.
func (s *Session) StopScreenShare() error {
	return s.call(s.stopScreenShare)
}

// SetAudioEnabled mutes or unmutes the outgoing audio track.
func (s *Session) SetAudioEnabled(on bool) error {
	return s.call(func() error { return s.setEnabled(webrtc.RTPCodecTypeAudio, on) })
}

// SetVideoEnabled turns the outgoing camera track off or on. A screen
// share keeps being sent while the camera is off.
func (s *Session) SetVideoEnabled(on bool) error {
	return s.call(func() error { return s.setEnabled(webrtc.RTPCodecTypeVideo, on) })
}

// ForceRefreshRemote re-announces the remote track.
func (s *Session) ForceRefreshRemote() error {
	return s.call(func() error {
		s.emit(RemoteMedia{})
		if s.remote != nil {
			t := *s.remote
			s.emit(RemoteMedia{Track: &t})
		}
		return nil
	})
}

// input is one unit of work for the loop.
type input interface{}

type relayInput struct{ ev signaling.Event }

type callInput struct {
	fn    func() error
	reply chan error
}

type candidateInput struct {
	gen  uint64
	init *webrtc.ICECandidateInit
}

type connStateInput struct {
	gen   uint64
	state webrtc.PeerConnectionState
}

type remoteChannelInput struct {
	gen uint64
	dc  messenger.DataChannel
}

type channelStateInput struct {
	gen  uint64
	open bool
}

type trackInput struct {
	gen   uint64
	track RemoteTrack
}

type mediaInput struct {
	gen    uint64
	stream *media.Stream
	err    error
}

func (s *Session) post(in input) bool {
	select {
	case s.inputs <- in:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) call(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.inputs <- callInput{fn: fn, reply: reply}:
	case <-s.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) run() {
	defer close(s.done)
	defer close(s.events)
	defer s.shutdown()

	for {
		select {
		case <-s.ctx.Done():
			return
		case in := <-s.inputs:
			s.dispatch(in)
			s.publish()
			if s.left {
				return
			}
		}
	}
}

func (s *Session) dispatch(in input) {
	switch in := in.(type) {
	case callInput:
		err := s.guard(in.fn)
		in.reply <- err
	case relayInput:
		s.onRelay(in.ev)
	case candidateInput:
		if in.gen == s.gen {
			s.onLocalCandidate(in.init)
		}
	case connStateInput:
		if in.gen == s.gen {
			s.onConnectionState(in.state)
		}
	case remoteChannelInput:
		if in.gen == s.gen {
			s.attach(in.dc)
		} else {
			_ = in.dc.Close()
		}
	case channelStateInput:
		if in.gen == s.gen {
			s.onChannelState(in.open)
		}
	case trackInput:
		if in.gen == s.gen {
			t := in.track
			s.remote = &t
			s.emit(RemoteMedia{Track: &t})
		}
	case mediaInput:
		s.onMedia(in)
	default:
		s.log.Error("unknown loop input", "input", in)
	}
}

func (s *Session) guard(fn func() error) error {
	if s.left {
		return ErrClosed
	}
	return fn()
}

func (s *Session) onRelay(ev signaling.Event) {
	if s.left {
		return
	}
	switch ev := ev.(type) {
	case signaling.Welcome:
		s.local = ev.ID
	case signaling.Joined:
		s.onJoined(ev)
	case signaling.PeerJoined:
		s.onPeerJoined(ev)
	case signaling.PeerLeft:
		s.onPeerLeft(ev)
	case signaling.Offer:
		s.onOffer(ev)
	case signaling.Answer:
		s.onAnswer(ev)
	case signaling.Candidate:
		s.onRemoteCandidate(ev)
	case signaling.ServerError:
		s.notice(WrapError("relay", ErrInvalidState, ev.Text))
	case signaling.Fallback:
		// Routed to the messenger, never to the session.
	}
}

func (s *Session) join(room string) error {
	if s.phase != PhaseIdle {
		return NewError("join", ErrAlreadyJoined)
	}
	if err := s.relay.Send(signaling.JoinRoom(room)); err != nil {
		return WrapError("join", ErrRelayUnreachable, err.Error())
	}
	s.room = room
	if s.channels != nil {
		s.channels.SetRoom(room)
	}
	s.log.Info("Joining room", "room", room)
	s.setPhase(PhaseAwaitingPeer)
	return nil
}

func (s *Session) create() error {
	if s.phase != PhaseIdle {
		return NewError("create", ErrAlreadyJoined)
	}
	if err := s.relay.Send(signaling.CreateRoom()); err != nil {
		return WrapError("create", ErrRelayUnreachable, err.Error())
	}
	s.log.Info("Creating room")
	s.setPhase(PhaseAwaitingPeer)
	return nil
}

func (s *Session) onJoined(ev signaling.Joined) {
	if s.room == "" && s.phase != PhaseIdle {
		s.room = ev.Room
		if s.channels != nil {
			s.channels.SetRoom(ev.Room)
		}
		s.emitState()
	}
	if len(ev.Peers) > 0 {
		s.peer = ev.Peers[len(ev.Peers)-1]
		s.peerPresent = true
	}
	s.log.Debug("Joined room", "room", ev.Room, "peers", len(ev.Peers))
}

func (s *Session) onPeerJoined(ev signaling.PeerJoined) {
	if s.phase == PhaseIdle {
		return
	}
	s.log.Info("Peer joined, sending offer", "peer", ev.Peer)
	s.peer = ev.Peer
	s.peerLeft = false
	s.peerPresent = true
	s.offer()
}

func (s *Session) onPeerLeft(ev signaling.PeerLeft) {
	if s.peer != "" && ev.Peer != s.peer {
		s.log.Debug("Ignoring departure of unknown peer", "peer", ev.Peer)
		return
	}
	s.log.Info("Peer left", "peer", ev.Peer)
	s.peerLeft = true
	s.peerPresent = false
	s.teardownPeer()
	s.clearRemote()
	if s.phase == PhaseDisconnected {
		s.emitState()
		return
	}
	s.setPhase(PhaseDisconnected)
}

// offer sends exactly one offer on a fresh or unused peer connection.
func (s *Session) offer() {
	pc, err := s.freshPeer()
	if err != nil {
		s.fail("offer", err)
		return
	}
	dc, err := pc.CreateDataChannel(messenger.ChannelLabel)
	if err != nil {
		s.fail("offer", err)
		return
	}
	s.attach(dc)

	desc, err := pc.CreateOffer()
	if err != nil {
		s.fail("offer", err)
		return
	}
	s.pcUsed = true
	s.offerer = true
	if !s.sendDescription("offer", desc) {
		return
	}
	s.sigState = SignalingOfferSent
	s.setPhase(PhaseOffering)
}

func (s *Session) onOffer(ev signaling.Offer) {
	switch {
	case ev.Restart:
		s.answerRestart(ev)

	case s.phase == PhaseOffering:
		if s.local != "" && s.local < ev.From {
			s.log.Info("Offer collision, yielding", "local", s.local, "peer", ev.From)
			s.teardownPeer()
			s.answer(ev)
			return
		}
		s.log.Info("Offer collision, keeping our offer", "local", s.local, "peer", ev.From)

	case s.phase == PhaseIdle, s.phase == PhaseAwaitingPeer, s.phase == PhaseDisconnected,
		s.phase == PhaseFailed && s.peerLeft:
		s.answer(ev)

	default:
		s.notice(WrapError("offer", ErrInvalidState, s.phase.String()))
	}
}

func (s *Session) answer(ev signaling.Offer) {
	if s.room == "" {
		s.room = ev.Room
	}
	s.peer = ev.From
	s.peerLeft = false
	s.peerPresent = true

	pc, err := s.freshPeer()
	if err != nil {
		s.fail("answer", err)
		return
	}
	s.pcUsed = true
	if err := pc.SetRemoteDescription(ev.SDP); err != nil {
		s.fail("answer", err)
		return
	}
	s.sigState = SignalingOfferReceived
	s.remoteSet()

	desc, err := pc.CreateAnswer()
	if err != nil {
		s.fail("answer", err)
		return
	}
	if !s.sendDescription("answer", desc) {
		return
	}
	s.sigState = SignalingStable
	s.setPhase(PhaseAnswering)
}

// answerRestart answers an ICE restart on the existing connection.
func (s *Session) answerRestart(ev signaling.Offer) {
	if s.pc == nil || !s.hasRemote || ev.From != s.peer {
		s.notice(WrapError("restart ice", ErrNoPeerConnection, "from "+ev.From))
		return
	}
	if err := s.pc.SetRemoteDescription(ev.SDP); err != nil {
		s.notice(NewError("restart ice", err))
		return
	}
	desc, err := s.pc.CreateAnswer()
	if err != nil {
		s.notice(NewError("restart ice", err))
		return
	}
	frame, err := signaling.Description(s.room, desc)
	if err == nil {
		err = s.relay.Send(frame)
	}
	if err != nil {
		s.notice(WrapError("restart ice", ErrRelayUnreachable, err.Error()))
		return
	}
	s.log.Info("Answered ICE restart", "peer", ev.From)
	s.sigState = SignalingStable
}

// restartICE re-offers with fresh ICE credentials after the transport
// dropped. Only the side that sent the original offer restarts, and only
// while the peer is still in the room.
func (s *Session) restartICE() {
	if !s.offerer || s.peerLeft || s.pc == nil || s.sigState != SignalingStable {
		return
	}
	desc, err := s.pc.RestartICE()
	if err != nil {
		s.notice(NewError("restart ice", err))
		return
	}
	frame, err := signaling.RestartOffer(s.room, desc)
	if err == nil {
		err = s.relay.Send(frame)
	}
	if err != nil {
		s.notice(WrapError("restart ice", ErrRelayUnreachable, err.Error()))
		return
	}
	s.log.Info("Restarting ICE", "peer", s.peer)
	s.sigState = SignalingOfferSent
}

func (s *Session) onAnswer(ev signaling.Answer) {
	if s.pc == nil || s.sigState != SignalingOfferSent {
		s.notice(WrapError("answer", ErrInvalidState, s.phase.String()))
		return
	}
	if err := s.pc.SetRemoteDescription(ev.SDP); err != nil {
		s.notice(err)
		return
	}
	s.sigState = SignalingStable
	s.remoteSet()
}

func (s *Session) onRemoteCandidate(ev signaling.Candidate) {
	if s.pc == nil || !s.hasRemote {
		s.pending = append(s.pending, ev.Init)
		return
	}
	if err := s.pc.AddICECandidate(ev.Init); err != nil {
		s.log.Warn("Rejected remote candidate", "error", err)
	}
}

// remoteSet flushes candidates that arrived before the remote description.
func (s *Session) remoteSet() {
	s.hasRemote = true
	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.log.Warn("Rejected buffered candidate", "error", err)
		}
	}
}

func (s *Session) onLocalCandidate(init *webrtc.ICECandidateInit) {
	if init == nil {
		s.gathering = webrtc.ICEGatheringStateComplete
		return
	}
	s.gathering = webrtc.ICEGatheringStateGathering
	frame, err := signaling.CandidateFrame(s.room, *init)
	if err != nil {
		s.log.Warn("Encode candidate", "error", err)
		return
	}
	if err := s.relay.Send(frame); err != nil {
		s.notice(WrapError("candidate", ErrRelayUnreachable, err.Error()))
	}
}

func (s *Session) onConnectionState(state webrtc.PeerConnectionState) {
	s.transport = state
	s.log.Debug("Connection state", "state", state.String())

	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.setPhase(PhaseConnected)
	case webrtc.PeerConnectionStateDisconnected:
		s.clearRemote()
		s.setPhase(PhaseDisconnected)
		s.restartICE()
	case webrtc.PeerConnectionStateFailed:
		s.clearRemote()
		s.setPhase(PhaseFailed)
	case webrtc.PeerConnectionStateClosed:
		s.setPhase(PhaseClosed)
	}
}

func (s *Session) onChannelState(open bool) {
	if !open && !s.channelOpened {
		s.notice(WrapError("channel", ErrChannelFailed, "closed before opening"))
		return
	}
	if open == s.channelOpen {
		return
	}
	s.channelOpen = open
	if open {
		s.channelOpened = true
		s.emit(ChannelReady{Channel: s.dc})
		return
	}
	s.emit(ChannelLost{})
}

// attach hands dc to the messenger and watches it for open and close.
func (s *Session) attach(dc messenger.DataChannel) {
	if dc.Label() != messenger.ChannelLabel {
		s.log.Debug("Ignoring data channel", "label", dc.Label())
		return
	}
	s.dc = dc
	s.channelOpened = false
	if s.channels != nil {
		s.channels.Attach(&watchedChannel{DataChannel: dc, s: s, gen: s.gen}, s.peer)
	} else {
		(&watchedChannel{DataChannel: dc, s: s, gen: s.gen}).watch()
	}
}

// freshPeer returns the current peer connection, replacing it first if it
// has already negotiated.
func (s *Session) freshPeer() (PeerConnection, error) {
	if s.pc != nil && !s.pcUsed {
		return s.pc, nil
	}
	s.teardownPeer()

	pc, err := s.peers()
	if err != nil {
		return nil, err
	}
	s.gen++
	gen := s.gen
	s.pc = pc
	s.pcUsed = false
	s.gathering = webrtc.ICEGatheringStateNew
	s.transport = webrtc.PeerConnectionStateNew

	pc.OnICECandidate(func(c *webrtc.ICECandidateInit) { s.post(candidateInput{gen: gen, init: c}) })
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) { s.post(connStateInput{gen: gen, state: st}) })
	pc.OnDataChannel(func(dc messenger.DataChannel) { s.post(remoteChannelInput{gen: gen, dc: dc}) })
	pc.OnTrack(func(t RemoteTrack) { s.post(trackInput{gen: gen, track: t}) })

	s.addLocalTracks()
	return pc, nil
}

// teardownPeer closes the peer connection and forgets everything tied to it.
func (s *Session) teardownPeer() {
	s.gen++
	if s.dc != nil && s.channels != nil {
		s.channels.Detach()
	}
	if s.channelOpen {
		s.channelOpen = false
		s.emit(ChannelLost{})
	}
	s.dc = nil
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			s.log.Debug("Close peer connection", "error", err)
		}
	}
	s.pc = nil
	s.pcUsed = false
	s.offerer = false
	s.hasRemote = false
	s.audioSender = nil
	s.videoSender = nil
	s.sigState = SignalingNone
	s.gathering = webrtc.ICEGatheringStateNew
	s.transport = webrtc.PeerConnectionStateNew
}

func (s *Session) rejoin() error {
	if s.phase == PhaseIdle {
		return NewError("rejoin", ErrNotJoined)
	}
	s.peerLeft = false
	s.teardownPeer()
	s.pending = nil
	s.clearRemote()
	s.setPhase(PhaseAwaitingPeer)
	if s.peerPresent {
		s.offer()
	}
	return nil
}

func (s *Session) leave() error {
	s.teardownPeer()
	s.clearRemote()
	s.mediaGen++
	if s.localStream != nil {
		s.localStream.Stop()
		s.localStream = nil
	}
	var err error
	if s.room != "" {
		if sendErr := s.relay.Send(signaling.LeaveRoom(s.room)); sendErr != nil {
			err = WrapError("leave", ErrRelayUnreachable, sendErr.Error())
		}
	}
	s.log.Info("Left room", "room", s.room)
	s.left = true
	s.setPhase(PhaseClosed)
	return err
}

func (s *Session) shutdown() {
	if !s.left {
		s.left = true
		s.teardownPeer()
		s.mediaGen++
		if s.localStream != nil {
			s.localStream.Stop()
		}
		s.phase = PhaseClosed
		s.publish()
	}
	s.cancel()
}

func (s *Session) sendDescription(op string, desc webrtc.SessionDescription) bool {
	frame, err := signaling.Description(s.room, desc)
	if err == nil {
		err = s.relay.Send(frame)
	}
	if err != nil {
		s.fail(op, WrapError(op, ErrRelayUnreachable, err.Error()))
		return false
	}
	return true
}

func (s *Session) fail(op string, err error) {
	var serr *Error
	if !errors.As(err, &serr) {
		err = NewError(op, err)
	}
	s.notice(err)
	s.setPhase(PhaseFailed)
}

func (s *Session) clearRemote() {
	if s.remote == nil {
		return
	}
	s.remote = nil
	s.emit(RemoteMedia{})
}

func (s *Session) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	s.log.Info("Session phase", "from", s.phase.String(), "to", p.String())
	s.phase = p
	s.emitState()
}

func (s *Session) emitState() {
	s.publish()
	s.emit(StateChanged{Phase: s.phase, Status: s.Status()})
}

func (s *Session) notice(err error) {
	s.log.Warn("Session notice", "error", err)
	s.emit(Notice{Err: err})
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("Event buffer full, dropping event", "event", ev)
	}
}

// publish copies loop state into the snapshot read by Status.
func (s *Session) publish() {
	st := Status{
		ID:         s.id,
		Room:       s.room,
		Local:      s.local,
		Peer:       s.peer,
		Phase:      s.phase,
		Signaling:  s.sigState,
		Gathering:  s.gathering,
		Transport:  s.transport,
		PeerLeft:   s.peerLeft,
		Channel:    s.channelOpen,
		AudioOff:   s.audioOff,
		VideoOff:   s.videoOff,
		Generation: s.gen,
	}
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// watchedChannel reports open and close to the session loop while still
// calling the handlers the messenger installs.
type watchedChannel struct {
	messenger.DataChannel
	s   *Session
	gen uint64
}

func (w *watchedChannel) OnOpen(fn func()) {
	w.DataChannel.OnOpen(func() {
		fn()
		w.s.post(channelStateInput{gen: w.gen, open: true})
	})
}

func (w *watchedChannel) OnClose(fn func()) {
	w.DataChannel.OnClose(func() {
		fn()
		w.s.post(channelStateInput{gen: w.gen, open: false})
	})
}

// watch installs the loop hooks without any messenger handlers.
func (w *watchedChannel) watch() {
	w.OnOpen(func() {})
	w.OnClose(func() {})
}
