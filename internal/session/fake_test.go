package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Prince200510/mini-meet-prince/internal/media"
	"github.com/Prince200510/mini-meet-prince/internal/messenger"
	"github.com/Prince200510/mini-meet-prince/internal/relay"
	"github.com/Prince200510/mini-meet-prince/internal/signaling"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeChannel struct {
	mu      sync.Mutex
	label   string
	state   webrtc.DataChannelState
	onOpen  func()
	onClose func()
}

func (c *fakeChannel) Label() string { return c.label }
func (c *fakeChannel) ReadyState() webrtc.DataChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
func (c *fakeChannel) Send([]byte) error                         { return nil }
func (c *fakeChannel) OnMessage(func(webrtc.DataChannelMessage)) {}
func (c *fakeChannel) Close() error                              { return nil }
func (c *fakeChannel) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}
func (c *fakeChannel) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *fakeChannel) open() {
	c.mu.Lock()
	c.state = webrtc.DataChannelStateOpen
	fn := c.onOpen
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *fakeChannel) close() {
	c.mu.Lock()
	c.state = webrtc.DataChannelStateClosed
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeSender struct {
	mu    sync.Mutex
	track webrtc.TrackLocal
}

func (s *fakeSender) ReplaceTrack(t webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = t
	return nil
}

func (s *fakeSender) current() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

type fakePeer struct {
	mu         sync.Mutex
	n          int
	remote     *webrtc.SessionDescription
	offers     int
	restarts   int
	answers    int
	candidates []webrtc.ICECandidateInit
	channels   []*fakeChannel
	senders    []*fakeSender
	closed     bool

	onCandidate func(*webrtc.ICECandidateInit)
	onState     func(webrtc.PeerConnectionState)
	onChannel   func(messenger.DataChannel)
	onTrack     func(RemoteTrack)
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("v=0 offer %d", p.n)}, nil
}

func (p *fakePeer) RestartICE() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restarts++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("v=0 restart %d", p.n)}, nil
}

func (p *fakePeer) restartCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return webrtc.SessionDescription{}, errors.New("answer without remote offer")
	}
	p.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("v=0 answer %d", p.n)}, nil
}

func (p *fakePeer) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &d
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("candidate before remote description")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) CreateDataChannel(label string) (messenger.DataChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dc := &fakeChannel{label: label, state: webrtc.DataChannelStateConnecting}
	p.channels = append(p.channels, dc)
	return dc, nil
}

func (p *fakePeer) AddTrack(t webrtc.TrackLocal) (TrackSender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &fakeSender{track: t}
	p.senders = append(p.senders, s)
	return s, nil
}

func (p *fakePeer) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = fn
}

func (p *fakePeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *fakePeer) OnDataChannel(fn func(messenger.DataChannel)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChannel = fn
}

func (p *fakePeer) OnTrack(fn func(RemoteTrack)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *fakePeer) setState(st webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	fn(st)
}

func (p *fakePeer) gather(c *webrtc.ICECandidateInit) {
	p.mu.Lock()
	fn := p.onCandidate
	p.mu.Unlock()
	fn(c)
}

func (p *fakePeer) remoteChannel(dc messenger.DataChannel) {
	p.mu.Lock()
	fn := p.onChannel
	p.mu.Unlock()
	fn(dc)
}

func (p *fakePeer) remoteTrack(t RemoteTrack) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	fn(t)
}

func (p *fakePeer) channel(t *testing.T) *fakeChannel {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.channels) == 0 {
		t.Fatalf("peer %d created no data channel", p.n)
	}
	return p.channels[0]
}

func (p *fakePeer) sender(t *testing.T, kind webrtc.RTPCodecType) *fakeSender {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.senders {
		if tr := s.current(); tr != nil && tr.Kind() == kind {
			return s
		}
	}
	t.Fatalf("peer %d has no %s sender", p.n, kind)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) counts() (offers, answers, candidates int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offers, p.answers, len(p.candidates)
}

func (p *fakePeer) hasRemote() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote != nil
}

// fakeNet builds fake peers and remembers them in creation order.
type fakeNet struct {
	mu    sync.Mutex
	peers []*fakePeer
}

func (n *fakeNet) factory() PeerFactory {
	return func() (PeerConnection, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		p := &fakePeer{n: len(n.peers) + 1}
		n.peers = append(n.peers, p)
		return p, nil
	}
}

func (n *fakeNet) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.peers)
}

func (n *fakeNet) peer(t *testing.T, i int) *fakePeer {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if i >= len(n.peers) {
		t.Fatalf("peer %d not created (have %d)", i, len(n.peers))
	}
	return n.peers[i]
}

type fakeChannels struct {
	mu       sync.Mutex
	room     string
	attached []messenger.DataChannel
	detached int
}

func (c *fakeChannels) SetRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
}

func (c *fakeChannels) Attach(dc messenger.DataChannel, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = append(c.attached, dc)
	dc.OnOpen(func() {})
	dc.OnClose(func() {})
}

func (c *fakeChannels) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached++
}

func (c *fakeChannels) stats() (attached, detached int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.attached), c.detached
}

type recordRelay struct {
	mu     sync.Mutex
	frames []*signaling.Message
}

func (r *recordRelay) Send(m *signaling.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, m)
	return nil
}

func (r *recordRelay) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.frames {
		if f.Type == kind {
			n++
		}
	}
	return n
}

func (r *recordRelay) last(t *testing.T, kind string) *signaling.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		if r.frames[i].Type == kind {
			return r.frames[i]
		}
	}
	t.Fatalf("no %s frame sent", kind)
	return nil
}

// hubRelay adapts an in-process relay client to the Relay interface.
type hubRelay struct{ c *relay.Client }

func (h hubRelay) Send(m *signaling.Message) error {
	if !h.c.Submit(m) {
		return errors.New("hub stopped")
	}
	return nil
}

// gatedSource hands out streams only when the test releases them.
type gatedSource struct {
	mu    sync.Mutex
	gates []chan *media.Stream
}

func (g *gatedSource) Open(ctx context.Context, _ media.Constraints) (*media.Stream, error) {
	gate := make(chan *media.Stream, 1)
	g.mu.Lock()
	g.gates = append(g.gates, gate)
	g.mu.Unlock()
	select {
	case s := <-gate:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedSource) OpenScreen(ctx context.Context) (*media.Stream, error) {
	return g.Open(ctx, media.Constraints{Video: true})
}

func (g *gatedSource) waitRequests(t *testing.T, n int) {
	t.Helper()
	eventually(t, fmt.Sprintf("%d media requests", n), func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.gates) >= n
	})
}

func (g *gatedSource) release(t *testing.T, i int, s *media.Stream) {
	t.Helper()
	g.waitRequests(t, i+1)
	g.mu.Lock()
	gate := g.gates[i]
	g.mu.Unlock()
	gate <- s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitPhase(t *testing.T, s *Session, p Phase) {
	t.Helper()
	eventually(t, "phase "+p.String(), func() bool { return s.Status().Phase == p })
}

// nextEvent returns the first event of type T, skipping others.
func nextEvent[T Event](t *testing.T, s *Session) T {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				var zero T
				t.Fatalf("events closed while waiting for %T", zero)
			}
			if v, ok := ev.(T); ok {
				return v
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
		}
	}
}

// noEvent fails if an event of type T is delivered before the channel closes.
func noEvent[T Event](t *testing.T, s *Session) {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return
			}
			if _, bad := ev.(T); bad {
				t.Fatalf("unexpected %T event", ev)
			}
		case <-timeout:
			return
		}
	}
}
