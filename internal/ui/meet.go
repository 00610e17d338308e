package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const maxLogLines = 500

// Update is pushed into a running MeetUI. The concrete types below are the
// only implementations.
type Update interface{ isUpdate() }

// PhaseUpdate reports a negotiation phase change.
type PhaseUpdate struct {
	Room     string
	Phase    string
	Peer     string
	PeerLeft bool
	Direct   bool
}

// SyncUpdate reports the whiteboard sync state.
type SyncUpdate struct{ State string }

// ChatUpdate is a chat line from either side.
type ChatUpdate struct {
	From string
	Text string
	Self bool
	Via  string
}

// NoticeUpdate is a status line. Err marks failures.
type NoticeUpdate struct {
	Text string
	Err  bool
}

func (PhaseUpdate) isUpdate()  {}
func (SyncUpdate) isUpdate()   {}
func (ChatUpdate) isUpdate()   {}
func (NoticeUpdate) isUpdate() {}

// InputFunc handles one submitted line. The reply, if any, is appended to the
// log. Returning quit ends the view.
type InputFunc func(line string) (reply string, quit bool)

// MeetUI runs the interactive session view.
type MeetUI struct {
	program *tea.Program
	model   *meetModel
	updates chan Update
	done    chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

type updateMsg struct{ u Update }

type updatesClosedMsg struct{}

type clockMsg time.Time

type meetModel struct {
	room string
	name string

	phase    string
	peer     string
	peerLeft bool
	direct   bool
	sync     string
	since    time.Time

	lines   []string
	input   textinput.Model
	spinner spinner.Model
	updates chan Update
	onInput InputFunc

	width    int
	height   int
	quitting bool
}

// NewMeetUI creates the view for room. Options are passed to bubbletea.
func NewMeetUI(room, name string, onInput InputFunc, opts ...tea.ProgramOption) *MeetUI {
	updates := make(chan Update, 100)
	model := newMeetModel(room, name, onInput, updates)
	return &MeetUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
		updates: updates,
		done:    make(chan struct{}),
	}
}

func newMeetModel(room, name string, onInput InputFunc, updates chan Update) *meetModel {
	ti := textinput.New()
	ti.Placeholder = "message or /command (try /help)"
	ti.Prompt = "› "
	ti.CharLimit = 500
	ti.Width = 60
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &meetModel{
		room:    room,
		name:    name,
		phase:   "idle",
		sync:    "ready",
		input:   ti,
		spinner: s,
		updates: updates,
		onInput: onInput,
		height:  24,
	}
}

// Start runs the program in the background.
func (u *MeetUI) Start() {
	go func() {
		defer close(u.done)
		_, err := u.program.Run()
		u.mu.Lock()
		u.err = err
		u.mu.Unlock()
	}()
}

// Send queues an update. It drops the update once the view has exited.
func (u *MeetUI) Send(up Update) {
	select {
	case u.updates <- up:
	case <-u.done:
	}
}

// Done is closed when the view exits.
func (u *MeetUI) Done() <-chan struct{} { return u.done }

// Err returns the program error once Done is closed.
func (u *MeetUI) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Stop quits the view and waits for the terminal to be restored.
func (u *MeetUI) Stop() {
	u.once.Do(func() {
		u.program.Quit()
		<-u.done
	})
}

func (m *meetModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.listenForUpdates(),
		clock(),
	)
}

func (m *meetModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return updatesClosedMsg{}
		}
		return updateMsg{u}
	}
}

func clock() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockMsg(t) })
}

func (m *meetModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.submit("/quit")
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			if m.submit(line) {
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if msg.Width > 10 {
			m.input.Width = msg.Width - 8
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case updateMsg:
		m.apply(msg.u)
		return m, m.listenForUpdates()

	case updatesClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case clockMsg:
		return m, clock()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit hands a line to the input handler and reports whether to quit.
func (m *meetModel) submit(line string) bool {
	if line == "/help" {
		m.appendLine(HelpView())
		return false
	}
	if m.onInput == nil {
		return false
	}
	reply, quit := m.onInput(line)
	if reply != "" {
		m.appendLine(reply)
	}
	return quit
}

func (m *meetModel) apply(u Update) {
	switch u := u.(type) {
	case PhaseUpdate:
		if u.Phase == "connected" && m.phase != "connected" {
			m.since = time.Now()
			m.appendLine(SuccessStyle.Render(fmt.Sprintf("%s connected to %s", IconConnect, shortID(u.Peer))))
		}
		if u.PeerLeft && !m.peerLeft {
			m.appendLine(WarningStyle.Render(fmt.Sprintf("%s peer left, /rejoin to wait for them", IconWarning)))
		}
		if u.Room != "" {
			m.room = u.Room
		}
		m.phase = u.Phase
		m.peerLeft = u.PeerLeft
		m.direct = u.Direct
		if u.Peer != "" {
			m.peer = u.Peer
		}
	case SyncUpdate:
		m.sync = u.State
	case ChatUpdate:
		who := PeerStyle.Render(u.From)
		if u.Self {
			who = SelfStyle.Render(u.From)
		}
		line := fmt.Sprintf("%s %s: %s", IconChat, who, u.Text)
		if u.Via != "" && u.Via != "direct" {
			line += MutedStyle.Render(" (" + u.Via + ")")
		}
		m.appendLine(line)
	case NoticeUpdate:
		if u.Err {
			m.appendLine(ErrorStyle.Render(IconError + " " + u.Text))
		} else {
			m.appendLine(MutedStyle.Render(u.Text))
		}
	}
}

func (m *meetModel) appendLine(s string) {
	m.lines = append(m.lines, strings.Split(s, "\n")...)
	if over := len(m.lines) - maxLogLines; over > 0 {
		m.lines = append(m.lines[:0], m.lines[over:]...)
	}
}

func (m *meetModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")

	visible := m.height - 7
	if visible < 3 {
		visible = 3
	}
	start := len(m.lines) - visible
	if start < 0 {
		start = 0
	}
	for _, l := range m.lines[start:] {
		b.WriteString(l)
		b.WriteString("\n")
	}
	for i := len(m.lines) - start; i < visible; i++ {
		b.WriteString("\n")
	}

	b.WriteString(InputBoxStyle.Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("enter send · /help commands · esc leave"))
	return b.String()
}

func (m *meetModel) header() string {
	title := HeaderStyle.Render(fmt.Sprintf("mini-meet %s %s", IconRoom, m.room))

	phase := m.phase
	if m.peerLeft {
		phase += " (peer left)"
	}
	badge := PhaseStyle(m.phase).Render(phase)

	var parts []string
	parts = append(parts, title, badge)

	switch m.phase {
	case "awaiting-peer", "offering", "answering":
		parts = append(parts, m.spinner.View())
	case "connected":
		parts = append(parts, MutedStyle.Render(time.Since(m.since).Round(time.Second).String()))
	}

	link := "relay"
	if m.direct {
		link = "direct"
	}
	parts = append(parts, MutedStyle.Render("chat:"+link))

	board := "board:" + m.sync
	if m.sync != "ready" {
		parts = append(parts, WarningStyle.Render(board))
	} else {
		parts = append(parts, MutedStyle.Render(board))
	}

	if m.peer != "" {
		parts = append(parts, PeerStyle.Render(IconPeer+" "+shortID(m.peer)))
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
