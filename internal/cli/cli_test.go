package cli

import (
	"context"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/Prince200510/mini-meet-prince/internal/config"
	"github.com/Prince200510/mini-meet-prince/internal/media"
	"github.com/Prince200510/mini-meet-prince/internal/messenger"
	"github.com/Prince200510/mini-meet-prince/internal/relay"
	"github.com/Prince200510/mini-meet-prince/internal/server"
	"github.com/Prince200510/mini-meet-prince/internal/session"
	"github.com/Prince200510/mini-meet-prince/internal/ui"
	"github.com/Prince200510/mini-meet-prince/internal/whiteboard"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordSender struct {
	mu   sync.Mutex
	sent []messenger.Message
}

func (r *recordSender) Send(m messenger.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return true
}

func (r *recordSender) kinds() []messenger.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]messenger.Kind, len(r.sent))
	for i, m := range r.sent {
		out[i] = m.Type
	}
	return out
}

type fakeControls struct {
	rejoins  int
	refresh  int
	shared   webrtc.TrackLocal
	unshared int
	audio    []bool
	video    []bool
	err      error
}

func (f *fakeControls) SetAudioEnabled(on bool) error {
	if f.err != nil {
		return f.err
	}
	f.audio = append(f.audio, on)
	return nil
}

func (f *fakeControls) SetVideoEnabled(on bool) error {
	if f.err != nil {
		return f.err
	}
	f.video = append(f.video, on)
	return nil
}

func (f *fakeControls) Rejoin() error             { f.rejoins++; return f.err }
func (f *fakeControls) ForceRefreshRemote() error { f.refresh++; return f.err }
func (f *fakeControls) ShareScreen(t webrtc.TrackLocal) error {
	if f.err != nil {
		return f.err
	}
	f.shared = t
	return nil
}
func (f *fakeControls) StopScreenShare() error { f.unshared++; return f.err }

func newTestCommander(t *testing.T) (*commander, *recordSender, *fakeControls) {
	t.Helper()
	sender := &recordSender{}
	board := whiteboard.NewEngine(whiteboard.Options{
		Surface: whiteboard.NewCanvas(120, 80),
		Sender:  sender,
		Logger:  quietLogger(),
	})
	t.Cleanup(board.Close)

	controls := &fakeControls{}
	c := &commander{
		ctx:    context.Background(),
		name:   "ada",
		board:  board,
		call:   controls,
		screen: media.NewSynthetic(quietLogger()),
		stats:  func() messenger.Stats { return messenger.Stats{DirectSent: 4, FallbackSent: 2} },
	}
	t.Cleanup(c.stopShare)
	return c, sender, controls
}

func TestCommanderSendsChatAndOperations(t *testing.T) {
	c, sender, _ := newTestCommander(t)

	reply, quit := c.Execute("hello there")
	if quit || !strings.Contains(reply, "hello there") {
		t.Fatalf("chat reply = %q quit=%v", reply, quit)
	}
	for _, line := range []string{
		"/line 1 1 40 40",
		"/shape rectangle 5 5 30 30 fill",
		"/text 10 20 two words",
		"/erase 10 10",
		"/clear",
	} {
		if reply, _ := c.Execute(line); strings.Contains(reply, "❌") {
			t.Fatalf("%s: %s", line, reply)
		}
	}

	want := []messenger.Kind{messenger.KindChat, messenger.KindStroke, messenger.KindShape, messenger.KindText, messenger.KindErase, messenger.KindClear}
	got := sender.kinds()
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent %v, want %v", got, want)
		}
	}
}

func TestCommanderRejectsBadInput(t *testing.T) {
	c, sender, _ := newTestCommander(t)

	cases := []string{
		"/line 1 2 3",
		"/line a b c d",
		"/shape blob 1 1 2 2",
		"/shape rectangle 1 1",
		"/text 1",
		"/erase 1",
		"/color red",
		"/tool crayon",
		"/grid maybe",
		"/export",
		"/teleport",
	}
	for _, line := range cases {
		reply, quit := c.Execute(line)
		if quit || !strings.Contains(reply, line[:strings.IndexByte(line+" ", ' ')]) {
			t.Fatalf("%q: reply %q", line, reply)
		}
	}
	if n := len(sender.kinds()); n != 0 {
		t.Fatalf("bad input sent %d messages", n)
	}
}

func TestCommanderUndoRedo(t *testing.T) {
	c, _, _ := newTestCommander(t)

	if reply, _ := c.Execute("/undo"); !strings.Contains(reply, "nothing to undo") {
		t.Fatalf("undo on empty board: %q", reply)
	}
	c.Execute("/line 0 0 100 70")
	if reply, _ := c.Execute("/undo"); reply != "" {
		t.Fatalf("undo: %q", reply)
	}
	if reply, _ := c.Execute("/redo"); reply != "" {
		t.Fatalf("redo: %q", reply)
	}
	if reply, _ := c.Execute("/redo"); !strings.Contains(reply, "nothing to redo") {
		t.Fatalf("second redo: %q", reply)
	}
}

func TestCommanderStyleCommands(t *testing.T) {
	c, _, _ := newTestCommander(t)

	c.Execute("/color #ff0000")
	reply, _ := c.Execute("/color #00ff00")
	if !strings.Contains(reply, "#00ff00 #ff0000") {
		t.Fatalf("recent colors reply = %q", reply)
	}
	if got := c.board.Style().Color; got != "#00ff00" {
		t.Fatalf("color = %q", got)
	}
	if reply, _ := c.Execute("/tool marker"); reply != "" {
		t.Fatalf("tool: %q", reply)
	}
	if reply, _ := c.Execute("/grid on"); reply != "" {
		t.Fatalf("grid: %q", reply)
	}
}

func TestCommanderExportWritesPNG(t *testing.T) {
	c, _, _ := newTestCommander(t)
	c.Execute("/shape circle 20 20 60 60 fill")

	path := filepath.Join(t.TempDir(), "board.png")
	if reply, _ := c.Execute("/export " + path); !strings.Contains(reply, path) {
		t.Fatalf("export reply = %q", reply)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 120 || b.Dy() != 80 {
		t.Fatalf("bounds = %v", b)
	}
}

func TestCommanderCallControls(t *testing.T) {
	c, _, controls := newTestCommander(t)

	if reply, _ := c.Execute("/unshare"); !strings.Contains(reply, "not sharing") {
		t.Fatalf("unshare before share: %q", reply)
	}
	c.Execute("/share")
	if controls.shared == nil || controls.shared.Kind() != webrtc.RTPCodecTypeVideo {
		t.Fatalf("screen track not shared: %v", controls.shared)
	}
	if reply, _ := c.Execute("/share"); !strings.Contains(reply, "already sharing") {
		t.Fatalf("second share: %q", reply)
	}
	c.Execute("/unshare")
	if controls.unshared != 1 || c.shared != nil {
		t.Fatalf("unshare: calls=%d shared=%v", controls.unshared, c.shared)
	}

	c.Execute("/refresh")
	c.Execute("/rejoin")
	if controls.refresh != 1 || controls.rejoins != 1 {
		t.Fatalf("refresh=%d rejoin=%d", controls.refresh, controls.rejoins)
	}

	controls.err = session.NewError("rejoin", session.ErrNotJoined)
	if reply, _ := c.Execute("/rejoin"); !strings.Contains(reply, "not joined") && !strings.Contains(reply, "rejoin") {
		t.Fatalf("rejoin error not shown: %q", reply)
	}

	if reply, _ := c.Execute("/stats"); !strings.Contains(reply, "4 direct / 2 relay") {
		t.Fatalf("stats = %q", reply)
	}
	if _, quit := c.Execute("/quit"); !quit {
		t.Fatalf("/quit did not quit")
	}
}

func TestParseFloats(t *testing.T) {
	got, err := parseFloats([]string{"1.5", "-2"}, 2, 3)
	if err != nil || len(got) != 2 || got[0] != 1.5 || got[1] != -2 {
		t.Fatalf("got %v, %v", got, err)
	}
	if _, err := parseFloats([]string{"1"}, 2, 3); !errors.Is(err, errUsage) {
		t.Fatalf("short input: %v", err)
	}
	if _, err := parseFloats([]string{"1", "x"}, 2, 2); !errors.Is(err, errUsage) {
		t.Fatalf("non-number: %v", err)
	}
}

func TestLoadConfigRequiresTURNForRelay(t *testing.T) {
	t.Setenv("TURN_SERVER", "")
	flagRelay = true
	t.Cleanup(func() { flagRelay = false })

	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error when forcing relay without TURN")
	}
}

func TestPhaseUpdate(t *testing.T) {
	u := phaseUpdate(session.Status{Room: "r1", Phase: session.PhaseDisconnected, Peer: "p", PeerLeft: true, Channel: true})
	if u.Room != "r1" || u.Phase != "disconnected" || u.Peer != "p" || !u.PeerLeft || !u.Direct {
		t.Fatalf("update = %+v", u)
	}
	// The relay announced the departure but the transport still runs.
	if u := phaseUpdate(session.Status{Phase: session.PhaseConnected, PeerLeft: true}); u.PeerLeft {
		t.Fatalf("live transport reported as departed: %+v", u)
	}
}

func TestCommanderMuteToggles(t *testing.T) {
	c, _, controls := newTestCommander(t)

	if reply, _ := c.Execute("/mute"); !strings.Contains(reply, "muted") {
		t.Fatalf("first /mute: %q", reply)
	}
	if reply, _ := c.Execute("/mute"); !strings.Contains(reply, "microphone on") {
		t.Fatalf("second /mute: %q", reply)
	}
	c.Execute("/camera")
	if len(controls.audio) != 2 || controls.audio[0] || !controls.audio[1] {
		t.Fatalf("audio toggles = %v", controls.audio)
	}
	if len(controls.video) != 1 || controls.video[0] {
		t.Fatalf("video toggles = %v", controls.video)
	}

	controls.err = errors.New("no sender")
	if reply, _ := c.Execute("/camera"); !strings.Contains(reply, "no sender") {
		t.Fatalf("error not shown: %q", reply)
	}
	if !c.camOff {
		t.Fatal("failed toggle changed the camera state")
	}
}

func TestParseFloatsRejectsOutOfRange(t *testing.T) {
	for _, in := range []string{"1e9", "NaN", "-Inf"} {
		if _, err := parseFloats([]string{"1", in}, 2, 2); !errors.Is(err, errUsage) {
			t.Fatalf("%s: %v", in, err)
		}
	}
}

func TestMeetingReportsRelayLoss(t *testing.T) {
	drop := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-drop
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	m := openMeeting(t, "ws"+strings.TrimPrefix(srv.URL, "http"), "ada")
	view := viewRecorder{ch: make(chan ui.Update, 256)}
	m.Attach(view)
	if err := m.Join("r1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	close(drop)

	timeout := time.After(5 * time.Second)
	for reported := false; !reported; {
		select {
		case u := <-view.ch:
			if n, ok := u.(ui.NoticeUpdate); ok && n.Err && strings.Contains(n.Text, session.ErrRelayUnreachable.Error()) {
				reported = true
			}
		case <-timeout:
			t.Fatal("relay loss never reported")
		}
	}

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close hung after relay loss")
	}
}

type viewRecorder struct{ ch chan ui.Update }

func (v viewRecorder) Send(u ui.Update) { v.ch <- u }

func startRelay(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(quietLogger())
	go hub.Run(ctx)
	srv := httptest.NewServer(server.NewMux(hub, &config.ServerConfig{}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func openMeeting(t *testing.T, url, name string) *Meeting {
	t.Helper()
	cfg, err := config.Load(config.Options{SignalingURL: url, STUNServer: "stun:127.0.0.1:3478", Name: name, Width: 100, Height: 80})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	m, err := Open(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestMeetingCreateJoinAndChat(t *testing.T) {
	if testing.Short() {
		t.Skip("creates pion peer connections")
	}
	url := startRelay(t)

	a := openMeeting(t, url, "ada")
	room, err := a.Create(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if room == "" {
		t.Fatalf("no room id")
	}

	b := openMeeting(t, url, "bo")
	view := viewRecorder{ch: make(chan ui.Update, 256)}
	b.Attach(view)
	if err := b.Join(room); err != nil {
		t.Fatalf("Join: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for a.session.Status().Peer == "" {
		if time.Now().After(deadline) {
			t.Fatalf("creator never saw the peer join")
		}
		time.Sleep(10 * time.Millisecond)
	}

	newCommander(context.Background(), a).Execute("hi from ada")

	timeout := time.After(10 * time.Second)
	for {
		select {
		case u := <-view.ch:
			if c, ok := u.(ui.ChatUpdate); ok {
				if c.From != "ada" || c.Text != "hi from ada" {
					t.Fatalf("chat = %+v", c)
				}
				if got := b.Summary().Room; got != room {
					t.Fatalf("summary room = %q, want %q", got, room)
				}
				return
			}
		case <-timeout:
			t.Fatalf("chat never reached the joiner")
		}
	}
}
