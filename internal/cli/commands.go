package cli

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/Prince200510/mini-meet-prince/internal/media"
	"github.com/Prince200510/mini-meet-prince/internal/messenger"
	"github.com/Prince200510/mini-meet-prince/internal/ui"
	"github.com/Prince200510/mini-meet-prince/internal/whiteboard"
)

var (
	errUsage          = errors.New("usage")
	errUnknownCommand = errors.New("unknown command")
)

// Controls are the call actions available from the command line.
// *session.Session satisfies it.
type Controls interface {
	Rejoin() error
	ForceRefreshRemote() error
	ShareScreen(webrtc.TrackLocal) error
	StopScreenShare() error
	SetAudioEnabled(on bool) error
	SetVideoEnabled(on bool) error
}

// commander turns typed lines into whiteboard, chat and call actions.
type commander struct {
	ctx    context.Context
	name   string
	board  *whiteboard.Engine
	call   Controls
	screen media.Source
	stats  func() messenger.Stats

	shared *media.Stream
	micOff bool
	camOff bool
}

func newCommander(ctx context.Context, m *Meeting) *commander {
	return &commander{
		ctx:    ctx,
		name:   m.cfg.Name,
		board:  m.board,
		call:   m.session,
		screen: m.source,
		stats:  m.messenger.Stats,
	}
}

// Execute handles one line from the view.
func (c *commander) Execute(line string) (string, bool) {
	if !strings.HasPrefix(line, "/") {
		c.board.Chat(c.name, line)
		return fmt.Sprintf("%s %s: %s", ui.IconChat, ui.SelfStyle.Render(c.name), line), false
	}

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	if name == "/quit" || name == "/leave" {
		c.stopShare()
		return "", true
	}

	reply, err := c.run(name, args)
	if err != nil {
		return ui.ErrorStyle.Render(fmt.Sprintf("%s %s: %v", ui.IconError, name, err)), false
	}
	return reply, false
}

func (c *commander) run(name string, args []string) (string, error) {
	switch name {
	case "/line":
		p, err := parseFloats(args, 4, 4)
		if err != nil {
			return "", err
		}
		c.board.StrokeSegment(whiteboard.Point{X: p[0], Y: p[1]}, whiteboard.Point{X: p[2], Y: p[3]})
		c.board.EndStroke()
		return "", nil

	case "/shape":
		if len(args) < 5 {
			return "", fmt.Errorf("%w: /shape kind x1 y1 x2 y2 [fill]", errUsage)
		}
		p, err := parseFloats(args[1:5], 4, 4)
		if err != nil {
			return "", err
		}
		filled := len(args) > 5 && args[5] == "fill"
		return "", c.board.AddShape(whiteboard.ShapeKind(args[0]), whiteboard.Point{X: p[0], Y: p[1]}, whiteboard.Point{X: p[2], Y: p[3]}, filled)

	case "/text":
		if len(args) < 3 {
			return "", fmt.Errorf("%w: /text x y words...", errUsage)
		}
		p, err := parseFloats(args[:2], 2, 2)
		if err != nil {
			return "", err
		}
		return "", c.board.AddText(whiteboard.Point{X: p[0], Y: p[1]}, strings.Join(args[2:], " "))

	case "/erase":
		p, err := parseFloats(args, 2, 3)
		if err != nil {
			return "", err
		}
		r := whiteboard.DefaultEraseRadius
		if len(p) == 3 {
			r = p[2]
		}
		c.board.EraseAt(whiteboard.Point{X: p[0], Y: p[1]}, r)
		return "", nil

	case "/clear":
		c.board.Clear()
		return ui.MutedStyle.Render("board cleared"), nil

	case "/undo":
		if !c.board.Undo() {
			return ui.MutedStyle.Render("nothing to undo"), nil
		}
		return "", nil

	case "/redo":
		if !c.board.Redo() {
			return ui.MutedStyle.Render("nothing to redo"), nil
		}
		return "", nil

	case "/color":
		if len(args) != 1 || !validHex(args[0]) {
			return "", fmt.Errorf("%w: /color #rrggbb", errUsage)
		}
		c.board.SetColor(args[0])
		return ui.MutedStyle.Render("recent colors: " + strings.Join(c.board.RecentColors(), " ")), nil

	case "/tool":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: /tool name", errUsage)
		}
		return "", c.board.SetTool(whiteboard.Tool(args[0]))

	case "/grid":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return "", fmt.Errorf("%w: /grid on|off", errUsage)
		}
		c.board.SetGrid(args[0] == "on")
		return "", nil

	case "/sync":
		c.board.RequestState()
		return ui.MutedStyle.Render("requested the peer's board"), nil

	case "/export":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: /export file.png", errUsage)
		}
		if err := c.export(args[0]); err != nil {
			return "", err
		}
		return ui.SuccessStyle.Render("board written to " + args[0]), nil

	case "/share":
		return c.share()

	case "/unshare":
		if c.shared == nil {
			return ui.MutedStyle.Render("not sharing"), nil
		}
		if err := c.call.StopScreenShare(); err != nil {
			return "", err
		}
		c.stopShare()
		return ui.MutedStyle.Render("screen sharing stopped"), nil

	case "/mute":
		if err := c.call.SetAudioEnabled(c.micOff); err != nil {
			return "", err
		}
		c.micOff = !c.micOff
		if c.micOff {
			return ui.MutedStyle.Render("microphone muted"), nil
		}
		return ui.MutedStyle.Render("microphone on"), nil

	case "/camera":
		if err := c.call.SetVideoEnabled(c.camOff); err != nil {
			return "", err
		}
		c.camOff = !c.camOff
		if c.camOff {
			return ui.MutedStyle.Render("camera off"), nil
		}
		return ui.MutedStyle.Render("camera on"), nil

	case "/refresh":
		return "", c.call.ForceRefreshRemote()

	case "/rejoin":
		if err := c.call.Rejoin(); err != nil {
			return "", err
		}
		return ui.MutedStyle.Render("waiting for the peer"), nil

	case "/stats":
		s := c.stats()
		return fmt.Sprintf("sent %d direct / %d relay, received %d direct / %d relay, %d dropped",
			s.DirectSent, s.FallbackSent, s.DirectRecv, s.FallbackRecv, s.DecodeFailures), nil
	}
	return "", fmt.Errorf("%w, try /help", errUnknownCommand)
}

func (c *commander) export(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.board.ExportPNG(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func (c *commander) share() (string, error) {
	if c.shared != nil {
		return ui.MutedStyle.Render("already sharing"), nil
	}
	if c.screen == nil {
		return "", errors.New("no screen source")
	}
	stream, err := c.screen.OpenScreen(c.ctx)
	if err != nil {
		return "", err
	}
	if err := c.call.ShareScreen(stream.Video); err != nil {
		stream.Stop()
		return "", err
	}
	c.shared = stream
	return ui.MutedStyle.Render("sharing screen"), nil
}

func (c *commander) stopShare() {
	if c.shared != nil {
		c.shared.Stop()
		c.shared = nil
	}
}

// parseFloats parses between lo and hi numeric arguments within the
// whiteboard's coordinate range.
func parseFloats(args []string, lo, hi int) ([]float64, error) {
	if len(args) < lo || len(args) > hi {
		return nil, fmt.Errorf("%w: expected %d to %d numbers, got %d", errUsage, lo, hi, len(args))
	}
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", errUsage, a)
		}
		if !(math.Abs(v) <= whiteboard.MaxCoordinate) {
			return nil, fmt.Errorf("%w: %q is out of range", errUsage, a)
		}
		out[i] = v
	}
	return out, nil
}

func validHex(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	_, err := strconv.ParseUint(s[1:], 16, 32)
	return err == nil
}
