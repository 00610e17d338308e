package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Prince200510/mini-meet-prince/internal/relay"
	"github.com/Prince200510/mini-meet-prince/internal/signaling"
)

type fakeChannel struct {
	mu      sync.Mutex
	state   webrtc.DataChannelState
	sent    [][]byte
	sendErr error

	onOpen    func()
	onClose   func()
	onMessage func(webrtc.DataChannelMessage)
}

func (f *fakeChannel) Label() string { return ChannelLabel }
func (f *fakeChannel) ReadyState() webrtc.DataChannelState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
func (f *fakeChannel) Send(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, b)
	return nil
}
func (f *fakeChannel) OnOpen(fn func())                             { f.onOpen = fn }
func (f *fakeChannel) OnClose(fn func())                            { f.onClose = fn }
func (f *fakeChannel) OnMessage(fn func(webrtc.DataChannelMessage)) { f.onMessage = fn }
func (f *fakeChannel) Close() error                                 { return nil }

func (f *fakeChannel) deliver(t *testing.T, m Message) {
	t.Helper()
	b, err := EncodeDirect(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.onMessage(webrtc.DataChannelMessage{Data: b})
}

type fakeRelay struct {
	mu     sync.Mutex
	frames []*relay.Message
	err    error
}

func (r *fakeRelay) Send(m *relay.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, m)
	return nil
}

type received struct {
	msg Message
	via Transport
}

func newTestMessenger(t *testing.T, r Relay) (*Messenger, chan received) {
	t.Helper()

	out := make(chan received, 32)
	m := New(r, func(msg Message, via Transport) { out <- received{msg, via} }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	t.Cleanup(func() {
		cancel()
		m.Close()
	})
	return m, out
}

func next(t *testing.T, ch chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
	return received{}
}

func stroke() Message {
	return Message{Action: Action{
		Type:       KindStroke,
		Tool:       "pencil",
		Stroke:     []Point{{X: 1, Y: 2}, {X: 3, Y: 4}},
		Properties: &Properties{Color: "#6366f1", Thickness: 3, Opacity: 1},
	}}
}

func TestSendPrefersOpenChannel(t *testing.T) {
	r := &fakeRelay{}
	m, _ := newTestMessenger(t, r)
	dc := &fakeChannel{state: webrtc.DataChannelStateOpen}
	m.Attach(dc, "peer")

	if !m.Send(stroke()) {
		t.Fatalf("expected direct send")
	}
	if len(dc.sent) != 1 || len(r.frames) != 0 {
		t.Fatalf("direct=%d relay=%d", len(dc.sent), len(r.frames))
	}
	got, err := DecodeDirect(dc.sent[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != KindStroke || len(got.Stroke) != 2 || got.Stroke[1].X != 3 || got.Properties.Color != "#6366f1" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if s := m.Stats(); s.DirectSent != 1 || s.FallbackSent != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestSendFallsBackWhenChannelUnavailable(t *testing.T) {
	cases := []struct {
		name string
		dc   *fakeChannel
	}{
		{"no channel", nil},
		{"connecting", &fakeChannel{state: webrtc.DataChannelStateConnecting}},
		{"closed", &fakeChannel{state: webrtc.DataChannelStateClosed}},
		{"send error", &fakeChannel{state: webrtc.DataChannelStateOpen, sendErr: errors.New("sctp gone")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &fakeRelay{}
			m, _ := newTestMessenger(t, r)
			m.SetRoom("r1")
			if tc.dc != nil {
				m.Attach(tc.dc, "peer")
			}

			if m.Send(stroke()) {
				t.Fatalf("expected fallback")
			}
			if len(r.frames) != 1 {
				t.Fatalf("relay frames = %d", len(r.frames))
			}
			f := r.frames[0]
			if f.Type != relay.MessageTypeFallback || f.RoomID != "r1" {
				t.Fatalf("unexpected frame %+v", f)
			}
			got, err := DecodeFallback(f.Payload)
			if err != nil || got.Type != KindStroke || got.Tool != "pencil" {
				t.Fatalf("payload %s: %v", f.Payload, err)
			}
		})
	}
}

func TestSendReportsFalseWhenRelayFails(t *testing.T) {
	m, _ := newTestMessenger(t, &fakeRelay{err: errors.New("down")})
	if m.Send(stroke()) {
		t.Fatalf("send should report false")
	}
	if s := m.Stats(); s.SendFailures != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestReceiveUnifiesTransportsInArrivalOrder(t *testing.T) {
	m, out := newTestMessenger(t, &fakeRelay{})
	dc := &fakeChannel{state: webrtc.DataChannelStateOpen}
	m.Attach(dc, "peer-1")

	dc.deliver(t, NewChat("bo", "hello"))
	payload, _ := EncodeFallback(Message{Action: Action{Type: KindClear}, From: "spoofed"})
	m.DeliverFallback("peer-1", payload)
	dc.deliver(t, stroke())

	want := []struct {
		kind Kind
		via  Transport
	}{{KindChat, Direct}, {KindClear, Fallback}, {KindStroke, Direct}}
	for i, w := range want {
		r := next(t, out)
		if r.msg.Type != w.kind || r.via != w.via || r.msg.From != "peer-1" {
			t.Fatalf("message %d = %+v via %v", i, r.msg, r.via)
		}
	}
}

func TestNoDeduplicationAcrossTransports(t *testing.T) {
	m, out := newTestMessenger(t, &fakeRelay{})
	dc := &fakeChannel{state: webrtc.DataChannelStateOpen}
	m.Attach(dc, "p")

	msg := NewChat("bo", "twice")
	dc.deliver(t, msg)
	payload, _ := EncodeFallback(msg)
	m.DeliverFallback("p", payload)

	next(t, out)
	next(t, out)
}

func TestDetachedAndClosedChannels(t *testing.T) {
	r := &fakeRelay{}
	m, out := newTestMessenger(t, r)

	old := &fakeChannel{state: webrtc.DataChannelStateOpen}
	m.Attach(old, "p")
	cur := &fakeChannel{state: webrtc.DataChannelStateOpen}
	m.Attach(cur, "p")

	old.deliver(t, NewChat("x", "stale"))
	cur.deliver(t, NewChat("x", "fresh"))
	if r := next(t, out); r.msg.Text != "fresh" {
		t.Fatalf("stale channel message delivered: %+v", r.msg)
	}

	// A closed channel downgrades to relay until the next Attach.
	cur.onClose()
	if m.DirectOpen() || m.Send(stroke()) {
		t.Fatalf("expected relay after channel close")
	}
	if len(r.frames) != 1 {
		t.Fatalf("relay frames = %d", len(r.frames))
	}
}

func TestMalformedFramesDropped(t *testing.T) {
	m, out := newTestMessenger(t, &fakeRelay{})
	dc := &fakeChannel{state: webrtc.DataChannelStateOpen}
	m.Attach(dc, "p")

	dc.onMessage(webrtc.DataChannelMessage{Data: []byte{0xc1}})
	m.DeliverFallback("p", json.RawMessage(`{"type":"launch-missiles"}`))
	m.DeliverFallback("p", json.RawMessage(`not json`))

	select {
	case r := <-out:
		t.Fatalf("malformed message delivered: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
	if s := m.Stats(); s.DecodeFailures != 3 {
		t.Fatalf("decode failures = %d", s.DecodeFailures)
	}
}

// hubRelay adapts an in-process relay client to the Relay interface.
type hubRelay struct{ c *relay.Client }

func (h hubRelay) Send(m *relay.Message) error {
	if !h.c.Submit(m) {
		return errors.New("hub stopped")
	}
	return nil
}

func TestStrokeArrivesViaFallbackWithFrom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})

	a := relay.NewClient(hub, nil, 32)
	b := relay.NewClient(hub, nil, 32)
	hub.Attach(a)
	hub.Attach(b)
	<-a.Send // welcome
	<-b.Send

	a.Submit(&relay.Message{Type: relay.MessageTypeJoinRoom, RoomID: "r1"})
	<-a.Send
	b.Submit(&relay.Message{Type: relay.MessageTypeJoinRoom, RoomID: "r1"})
	<-b.Send
	<-a.Send // peer-joined

	ma, _ := newTestMessenger(t, hubRelay{a})
	ma.SetRoom("r1")
	mb, outB := newTestMessenger(t, hubRelay{b})

	h := signaling.NewHandler(b.Send)
	h.OnFallback = func(fb signaling.Fallback) { mb.DeliverFallback(fb.From, fb.Payload) }
	go h.Run(ctx)

	if ma.Send(stroke()) {
		t.Fatalf("no channel was ever opened; send must use the relay")
	}

	r := next(t, outB)
	if r.via != Fallback || r.msg.Type != KindStroke || r.msg.From != a.ID {
		t.Fatalf("B received %+v via %v", r.msg, r.via)
	}
}
