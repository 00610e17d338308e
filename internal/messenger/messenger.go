package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/Prince200510/mini-meet-prince/internal/relay"
	"github.com/Prince200510/mini-meet-prince/internal/signaling"
)

// ChannelLabel is the label of the direct data channel.
const ChannelLabel = "messaging"

// ErrClosed is returned by operations on a closed messenger.
var ErrClosed = errors.New("messenger closed")

// DataChannel is the subset of *webrtc.DataChannel the messenger uses.
type DataChannel interface {
	Label() string
	ReadyState() webrtc.DataChannelState
	Send([]byte) error
	OnOpen(func())
	OnClose(func())
	OnMessage(func(webrtc.DataChannelMessage))
	Close() error
}

// Relay submits frames to the signaling relay.
type Relay interface {
	Send(*relay.Message) error
}

// Transport says which path carried a message.
type Transport int

const (
	Direct Transport = iota
	Fallback
)

func (t Transport) String() string {
	if t == Direct {
		return "direct"
	}
	return "relay"
}

// Handler receives every inbound message, from either transport, in arrival order.
type Handler func(msg Message, via Transport)

// Stats counts traffic per transport.
type Stats struct {
	DirectSent     uint64
	FallbackSent   uint64
	DirectRecv     uint64
	FallbackRecv   uint64
	DecodeFailures uint64
	SendFailures   uint64
}

type inbound struct {
	msg Message
	via Transport
}

// Messenger sends application messages over the direct channel when it is
// open and through the relay otherwise.
type Messenger struct {
	relay   Relay
	handler Handler
	log     *slog.Logger

	mu      sync.Mutex
	room    string
	dc      DataChannel
	peer    string
	attachN uint64

	inbox chan inbound
	done  chan struct{}
	once  sync.Once

	directSent, fallbackSent, directRecv, fallbackRecv, decodeFailures, sendFailures atomic.Uint64
}

// New creates a messenger. Run must be called to deliver inbound messages.
func New(r Relay, handler Handler, logger *slog.Logger) *Messenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Messenger{
		relay:   r,
		handler: handler,
		log:     logger.With("component", "messenger"),
		inbox:   make(chan inbound, 256),
		done:    make(chan struct{}),
	}
}

// SetRoom sets the room that fallback frames are tagged with.
func (m *Messenger) SetRoom(room string) {
	m.mu.Lock()
	m.room = room
	m.mu.Unlock()
}

// Attach makes dc the direct channel to peer. Frames from a previously
// attached channel are ignored from now on.
func (m *Messenger) Attach(dc DataChannel, peer string) {
	m.mu.Lock()
	m.attachN++
	gen := m.attachN
	m.dc = dc
	m.peer = peer
	m.mu.Unlock()

	dc.OnOpen(func() {
		m.log.Info("direct channel open", "label", dc.Label(), "peer", peer)
	})
	dc.OnClose(func() {
		m.mu.Lock()
		if m.attachN == gen {
			m.dc = nil
		}
		m.mu.Unlock()
		m.log.Info("direct channel closed, using relay", "peer", peer)
	})
	dc.OnMessage(func(raw webrtc.DataChannelMessage) {
		if !m.current(gen) {
			return
		}
		msg, err := DecodeDirect(raw.Data)
		if err != nil {
			m.decodeFailures.Add(1)
			m.log.Warn("dropping direct message", "error", err)
			return
		}
		msg.From = peer
		m.directRecv.Add(1)
		m.enqueue(inbound{msg: msg, via: Direct})
	})
}

// Detach forgets the direct channel; sends go through the relay until
// the next Attach.
func (m *Messenger) Detach() {
	m.mu.Lock()
	m.attachN++
	m.dc = nil
	m.peer = ""
	m.mu.Unlock()
}

func (m *Messenger) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attachN == gen
}

// DirectOpen reports whether an attached channel is open.
func (m *Messenger) DirectOpen() bool {
	m.mu.Lock()
	dc := m.dc
	m.mu.Unlock()
	return dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen
}

// Send transmits msg and reports whether the direct channel carried it.
// False means the relay fallback was used (or the message could not be
// sent at all); both paths are best-effort.
func (m *Messenger) Send(msg Message) bool {
	select {
	case <-m.done:
		return false
	default:
	}

	m.mu.Lock()
	dc, room := m.dc, m.room
	m.mu.Unlock()

	if dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen {
		data, err := EncodeDirect(msg)
		if err == nil {
			if err = dc.Send(data); err == nil {
				m.directSent.Add(1)
				return true
			}
		}
		m.log.Warn("direct send failed, falling back to relay", "type", msg.Type, "error", err)
	}

	payload, err := EncodeFallback(msg)
	if err != nil {
		m.sendFailures.Add(1)
		m.log.Error("encode fallback message", "type", msg.Type, "error", err)
		return false
	}
	if err := m.relay.Send(signaling.FallbackFrame(room, payload)); err != nil {
		m.sendFailures.Add(1)
		m.log.Warn("relay fallback send failed", "type", msg.Type, "error", err)
		return false
	}
	m.fallbackSent.Add(1)
	return false
}

// DeliverFallback accepts a wb-fallback payload relayed from peer.
func (m *Messenger) DeliverFallback(from string, payload json.RawMessage) {
	msg, err := DecodeFallback(payload)
	if err != nil {
		m.decodeFailures.Add(1)
		m.log.Warn("dropping fallback message", "from", from, "error", err)
		return
	}
	msg.From = from
	m.fallbackRecv.Add(1)
	m.enqueue(inbound{msg: msg, via: Fallback})
}

func (m *Messenger) enqueue(in inbound) {
	select {
	case m.inbox <- in:
	case <-m.done:
	}
}

// Run delivers inbound messages to the handler until ctx is done or the
// messenger is closed.
func (m *Messenger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case in := <-m.inbox:
			if m.handler != nil {
				m.handler(in.msg, in.via)
			}
		}
	}
}

// Close stops delivery and detaches the channel. It does not close the
// channel itself; the session owns it.
func (m *Messenger) Close() {
	m.once.Do(func() {
		m.Detach()
		close(m.done)
	})
}

// Stats returns a snapshot of the transport counters.
func (m *Messenger) Stats() Stats {
	return Stats{
		DirectSent:     m.directSent.Load(),
		FallbackSent:   m.fallbackSent.Load(),
		DirectRecv:     m.directRecv.Load(),
		FallbackRecv:   m.fallbackRecv.Load(),
		DecodeFailures: m.decodeFailures.Load(),
		SendFailures:   m.sendFailures.Load(),
	}
}
