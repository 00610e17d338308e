package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Prince200510/mini-meet-prince/internal/config"
	"github.com/Prince200510/mini-meet-prince/internal/media"
	"github.com/Prince200510/mini-meet-prince/internal/messenger"
	"github.com/Prince200510/mini-meet-prince/internal/session"
	"github.com/Prince200510/mini-meet-prince/internal/signaling"
	"github.com/Prince200510/mini-meet-prince/internal/ui"
	"github.com/Prince200510/mini-meet-prince/internal/whiteboard"
)

// Updates receives what the terminal view shows. *ui.MeetUI satisfies it.
type Updates interface {
	Send(ui.Update)
}

// Meeting wires the relay connection, session, messenger and whiteboard
// for one room.
type Meeting struct {
	cfg    *config.Config
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	client    *signaling.Client
	messenger *messenger.Messenger
	board     *whiteboard.Engine
	session   *session.Session
	source    media.Source

	mediaReady chan error
	mediaOnce  sync.Once
	roomReady  chan string
	roomOnce   sync.Once
	pumpDone   chan struct{}
	closeOnce  sync.Once

	mu        sync.Mutex
	view      Updates
	connected bool
	since     time.Time // first transition to connected
}

// Open dials the relay and starts every component. Nothing joins a room
// until Join or Create is called.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Meeting, error) {
	client, err := signaling.Dial(ctx, cfg.SignalingURL)
	if err != nil {
		return nil, session.WrapError("connect to relay", session.ErrRelayUnreachable, err.Error())
	}

	peers, err := session.NewPeerFactory(cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	m := &Meeting{
		cfg:        cfg,
		log:        logger.With("component", "meeting"),
		ctx:        ctx,
		cancel:     cancel,
		client:     client,
		source:     media.NewSynthetic(logger),
		mediaReady: make(chan error, 1),
		roomReady:  make(chan string, 1),
		pumpDone:   make(chan struct{}),
	}

	m.messenger = messenger.New(client, m.onMessage, logger)
	m.board = whiteboard.NewEngine(whiteboard.Options{
		Surface: whiteboard.NewCanvas(cfg.Width, cfg.Height),
		Sender:  m.messenger,
		Logger:  logger,
		OnChat:  m.onChat,
		OnSync:  m.onSync,
	})
	m.session = session.New(ctx, session.Options{
		Relay:       client,
		Peers:       peers,
		Channels:    m.messenger,
		Media:       m.source,
		Constraints: media.Constraints{Audio: true, Video: !cfg.AudioOnly},
		Logger:      logger,
	})

	h := signaling.NewHandler(client.Incoming())
	h.OnEvent = m.session.HandleEvent
	h.OnFallback = func(fb signaling.Fallback) {
		m.messenger.DeliverFallback(fb.From, fb.Payload)
	}
	h.OnClosed = m.onRelayLost
	go h.Run(ctx)
	go m.messenger.Run(ctx)
	go m.pump()

	return m, nil
}

// StartMedia acquires local tracks and waits until they are ready, failed,
// or timeout passes. Joining after this returns puts the tracks in the
// first offer or answer.
func (m *Meeting) StartMedia(ctx context.Context, timeout time.Duration) error {
	if err := m.session.StartMedia(ctx); err != nil {
		return err
	}
	select {
	case err := <-m.mediaReady:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("media not ready after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join enters room.
func (m *Meeting) Join(room string) error {
	return m.session.Join(room)
}

// Create asks the relay for a room and returns its id.
func (m *Meeting) Create(ctx context.Context, timeout time.Duration) (string, error) {
	if err := m.session.Create(); err != nil {
		return "", err
	}
	select {
	case room := <-m.roomReady:
		return room, nil
	case <-time.After(timeout):
		return "", session.WrapError("create", session.ErrRelayUnreachable, "no room assigned")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Attach starts forwarding updates to v.
func (m *Meeting) Attach(v Updates) {
	m.mu.Lock()
	m.view = v
	m.mu.Unlock()
	m.push(phaseUpdate(m.session.Status()))
	m.push(ui.SyncUpdate{State: m.board.SyncState().String()})
}

// Done is closed when the session has ended.
func (m *Meeting) Done() <-chan struct{} { return m.session.Done() }

// Summary describes the meeting so far.
func (m *Meeting) Summary() ui.SessionSummary {
	st := m.session.Status()
	stats := m.messenger.Stats()

	m.mu.Lock()
	var d time.Duration
	if !m.since.IsZero() {
		d = time.Since(m.since)
	}
	m.mu.Unlock()

	return ui.SessionSummary{
		Room:           st.Room,
		Session:        st.ID,
		Peer:           st.Peer,
		Phase:          st.Phase.String(),
		Duration:       d,
		DirectSent:     stats.DirectSent,
		FallbackSent:   stats.FallbackSent,
		DirectRecv:     stats.DirectRecv,
		FallbackRecv:   stats.FallbackRecv,
		DecodeFailures: stats.DecodeFailures,
		SendFailures:   stats.SendFailures,
		Operations:     len(m.board.Log()),
	}
}

// Close leaves the room and stops every component.
func (m *Meeting) Close() {
	m.closeOnce.Do(func() {
		if err := m.session.Leave(); err != nil && !errors.Is(err, session.ErrClosed) {
			m.log.Warn("leave failed", "error", err)
		}
		m.board.Close()
		m.messenger.Close()
		m.cancel()
		m.client.Close()
		<-m.pumpDone
	})
}

func (m *Meeting) push(u ui.Update) {
	m.mu.Lock()
	v := m.view
	m.mu.Unlock()
	if v != nil {
		v.Send(u)
	}
}

func (m *Meeting) onMessage(msg messenger.Message, via messenger.Transport) {
	m.board.HandleMessage(msg, via)
}

func (m *Meeting) onChat(msg messenger.Message) {
	via := messenger.Fallback
	if m.messenger.DirectOpen() {
		via = messenger.Direct
	}
	name := msg.Name
	if name == "" {
		name = "peer"
	}
	m.push(ui.ChatUpdate{From: name, Text: msg.Text, Via: via.String()})
}

// onRelayLost tells the user the relay went away. The call keeps running
// over the direct channel if it has one.
func (m *Meeting) onRelayLost() {
	if m.ctx.Err() != nil {
		return
	}
	err := session.WrapError("relay", session.ErrRelayUnreachable, "connection lost")
	m.log.Warn("relay connection lost")
	m.push(ui.NoticeUpdate{Text: err.Error(), Err: true})
}

func (m *Meeting) onSync(s whiteboard.SyncState) {
	m.push(ui.SyncUpdate{State: s.String()})
}

// pump turns session events into view updates until the session ends.
func (m *Meeting) pump() {
	defer close(m.pumpDone)

	for ev := range m.session.Events() {
		switch ev := ev.(type) {
		case session.StateChanged:
			m.onState(ev.Status)
		case session.ChannelReady, session.ChannelLost:
			m.push(phaseUpdate(m.session.Status()))
		case session.LocalMedia:
			m.mediaOnce.Do(func() { m.mediaReady <- nil })
			m.push(ui.NoticeUpdate{Text: describeStream(ev.Stream)})
		case session.RemoteMedia:
			if ev.Track == nil {
				m.push(ui.NoticeUpdate{Text: "remote media stopped"})
			} else {
				m.push(ui.NoticeUpdate{Text: fmt.Sprintf("receiving %s from peer", ev.Track.Kind)})
			}
		case session.Notice:
			var serr *session.Error
			if errors.As(ev.Err, &serr) && serr.Op == "start media" {
				m.mediaOnce.Do(func() { m.mediaReady <- ev.Err })
			}
			m.push(ui.NoticeUpdate{Text: ev.Err.Error(), Err: true})
		}
	}
}

func (m *Meeting) onState(st session.Status) {
	if st.Room != "" {
		m.roomOnce.Do(func() { m.roomReady <- st.Room })
	}

	m.mu.Lock()
	entered := st.Phase == session.PhaseConnected && !m.connected
	if entered && m.since.IsZero() {
		m.since = time.Now()
	}
	m.connected = st.Phase == session.PhaseConnected
	m.mu.Unlock()

	m.push(phaseUpdate(st))
	if entered {
		m.board.RequestState()
	}
}

func phaseUpdate(st session.Status) ui.PhaseUpdate {
	return ui.PhaseUpdate{
		Room:     st.Room,
		Phase:    st.Phase.String(),
		Peer:     st.Peer,
		PeerLeft: st.Departed(),
		Direct:   st.Channel,
	}
}

func describeStream(s *media.Stream) string {
	switch {
	case s == nil:
		return "local media ready"
	case s.Video == nil:
		return "sending audio"
	default:
		return "sending audio and video"
	}
}
