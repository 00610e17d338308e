package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func typeLine(m *meetModel, line string) tea.Cmd {
	m.input.SetValue(line)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func TestMeetModelSubmitsLines(t *testing.T) {
	var got []string
	m := newMeetModel("r1", "ada", func(line string) (string, bool) {
		got = append(got, line)
		return "ok " + line, line == "/quit"
	}, make(chan Update))

	typeLine(m, "  hello  ")
	typeLine(m, "   ")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("submitted %q", got)
	}
	if m.input.Value() != "" {
		t.Fatalf("input not cleared: %q", m.input.Value())
	}
	if !strings.Contains(m.View(), "ok hello") {
		t.Fatalf("reply missing from view:\n%s", m.View())
	}

	if cmd := typeLine(m, "/quit"); cmd == nil {
		t.Fatalf("quit returned no command")
	}
	if !m.quitting || m.View() != "" {
		t.Fatalf("model did not quit")
	}
}

func TestMeetModelHelpIsLocal(t *testing.T) {
	called := false
	m := newMeetModel("r1", "ada", func(string) (string, bool) {
		called = true
		return "", false
	}, make(chan Update))
	m.height = 60

	typeLine(m, "/help")
	if called {
		t.Fatalf("/help reached the input handler")
	}
	if !strings.Contains(m.View(), "/export file.png") {
		t.Fatalf("help table missing:\n%s", m.View())
	}
}

func TestMeetModelAppliesUpdates(t *testing.T) {
	m := newMeetModel("r1", "ada", nil, make(chan Update))

	m.apply(PhaseUpdate{Phase: "connected", Peer: "0123456789abcdef", Direct: true})
	m.apply(SyncUpdate{State: "requesting"})
	m.apply(ChatUpdate{From: "bo", Text: "hi there", Via: "relay"})
	m.apply(NoticeUpdate{Text: "media denied", Err: true})

	view := m.View()
	for _, want := range []string{"connected", "chat:direct", "board:requesting", "01234567", "hi there", "(relay)", "media denied"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}

	m.apply(PhaseUpdate{Phase: "disconnected", PeerLeft: true})
	view = m.View()
	if !strings.Contains(view, "peer left") || !strings.Contains(view, "/rejoin") {
		t.Fatalf("peer-left not shown:\n%s", view)
	}
	if m.peer != "0123456789abcdef" {
		t.Fatalf("peer id forgotten: %q", m.peer)
	}
}

func TestMeetModelLogIsBounded(t *testing.T) {
	m := newMeetModel("r1", "ada", nil, make(chan Update))
	for i := 0; i < maxLogLines+25; i++ {
		m.apply(NoticeUpdate{Text: "line"})
	}
	if len(m.lines) != maxLogLines {
		t.Fatalf("lines = %d", len(m.lines))
	}
}

func TestMeetModelQuitsWhenUpdatesClose(t *testing.T) {
	updates := make(chan Update)
	m := newMeetModel("r1", "ada", nil, updates)
	close(updates)

	msg := m.listenForUpdates()()
	if _, ok := msg.(updatesClosedMsg); !ok {
		t.Fatalf("got %T", msg)
	}
	m.Update(msg)
	if !m.quitting {
		t.Fatalf("model still running")
	}
}

func TestSessionSummaryView(t *testing.T) {
	out := SessionSummaryView(SessionSummary{
		Room:         "brave-otter",
		Session:      "s-1",
		Phase:        "closed",
		Duration:     90 * time.Second,
		DirectSent:   12,
		FallbackSent: 3,
		Operations:   7,
	})
	for _, want := range []string{"brave-otter", "closed", "01m30s", "12 / 3", "Board operations"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "00m00s"},
		{59*time.Second + 600*time.Millisecond, "01m00s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.in); got != tc.want {
			t.Fatalf("formatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRoomBannerShowsShareHint(t *testing.T) {
	v := RoomBanner{Room: "brave-otter", Name: "ada", Relay: "ws://x/ws", Created: true}.View()
	if !strings.Contains(v, "minimeet join brave-otter") {
		t.Fatalf("banner:\n%s", v)
	}
	v = RoomBanner{Room: "brave-otter", Name: "ada"}.View()
	if strings.Contains(v, "Share") {
		t.Fatalf("join banner should not carry the share hint:\n%s", v)
	}
}
