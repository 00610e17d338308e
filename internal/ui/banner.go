package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RoomBanner is shown once the relay has confirmed the room.
type RoomBanner struct {
	Room    string
	Name    string
	Relay   string
	Created bool
}

func (r RoomBanner) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Primary).
		Padding(1, 2)

	roomStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	var b strings.Builder
	fmt.Fprintf(&b, "%s Room: %s\n", IconRoom, roomStyle.Render(r.Room))
	fmt.Fprintf(&b, "%s You:  %s\n", IconPeer, SelfStyle.Render(r.Name))
	b.WriteString(MutedStyle.Render("relay " + r.Relay))
	if r.Created {
		b.WriteString("\n\n")
		b.WriteString(MutedStyle.Render(fmt.Sprintf("%s Share with your peer: minimeet join %s", IconCopy, r.Room)))
	}
	return boxStyle.Render(b.String())
}

// Command describes one interactive command for the help table.
type Command struct {
	Usage string
	Help  string
}

// Commands lists what the session view accepts.
var Commands = []Command{
	{"<text>", "send a chat message"},
	{"/line x1 y1 x2 y2", "draw a stroke segment"},
	{"/shape kind x1 y1 x2 y2 [fill]", "draw a shape"},
	{"/text x y words...", "place text"},
	{"/erase x y [r]", "erase around a point"},
	{"/clear", "clear the board for both sides"},
	{"/undo, /redo", "step through local history"},
	{"/color #rrggbb", "set the ink color"},
	{"/tool name", "pencil, pen, marker, highlighter, brush"},
	{"/grid on|off", "snap shape endpoints to the grid"},
	{"/sync", "request the peer's board"},
	{"/export file.png", "write the board as PNG"},
	{"/share, /unshare", "toggle screen sharing"},
	{"/mute", "toggle the microphone"},
	{"/camera", "toggle the camera"},
	{"/refresh", "renegotiate remote media"},
	{"/rejoin", "re-enter the room after the peer left"},
	{"/stats", "print transport counters"},
	{"/quit", "leave the room"},
}

// HelpView renders Commands as a table.
func HelpView() string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Headers("Command", "Action")

	for _, c := range Commands {
		t.Row(c.Usage, c.Help)
	}
	return t.Render()
}
