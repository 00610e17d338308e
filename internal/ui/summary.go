package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// SessionSummary is printed when the client leaves a room.
type SessionSummary struct {
	Room     string
	Session  string
	Peer     string
	Phase    string
	Duration time.Duration

	DirectSent     uint64
	FallbackSent   uint64
	DirectRecv     uint64
	FallbackRecv   uint64
	DecodeFailures uint64
	SendFailures   uint64

	Operations int
}

// SessionSummaryView renders the summary as a two column table.
func SessionSummaryView(s SessionSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.Bold, text.FgHiCyan}
	t.Style().Options.SeparateRows = false
	t.SetTitle("%s Session summary", IconChat)

	peer := s.Peer
	if peer == "" {
		peer = "-"
	}

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Room", s.Room},
		{"Session", s.Session},
		{"Peer", peer},
		{"Final phase", s.Phase},
		{"Duration", formatDuration(s.Duration)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Sent (direct / relay)", fmt.Sprintf("%d / %d", s.DirectSent, s.FallbackSent)},
		{"Received (direct / relay)", fmt.Sprintf("%d / %d", s.DirectRecv, s.FallbackRecv)},
		{"Dropped frames", s.DecodeFailures},
		{"Failed sends", s.SendFailures},
		{"Board operations", s.Operations},
	})
	return t.Render()
}

// PrintSessionSummary writes the summary followed by a newline.
func PrintSessionSummary(w io.Writer, s SessionSummary) {
	fmt.Fprintln(w, SessionSummaryView(s))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, sec)
	}
	return fmt.Sprintf("%02dm%02ds", m, sec)
}
