package whiteboard

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Prince200510/mini-meet-prince/internal/messenger"
)

// DefaultRequestTimeout is how long a state request waits for the next
// page of a reply.
const DefaultRequestTimeout = 3 * time.Second

// StatePageBytes bounds the encoded size of one full-state page. The relay
// and the data channel both refuse messages of 64 KiB.
const StatePageBytes = 32 * 1024

// ErrExportUnsupported is returned by ExportPNG when the surface cannot be
// encoded.
var ErrExportUnsupported = errors.New("surface does not support PNG export")

// SyncState tracks a full-state resynchronisation.
type SyncState int

const (
	SyncReady SyncState = iota
	SyncRequesting
	SyncSyncing
)

func (s SyncState) String() string {
	switch s {
	case SyncReady:
		return "ready"
	case SyncRequesting:
		return "requesting"
	case SyncSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// Options configures an Engine.
type Options struct {
	Surface Surface
	Sender  Sender
	Logger  *slog.Logger

	// OnChat receives chat messages from the peer.
	OnChat func(messenger.Message)
	// OnSync is called after each change of SyncState.
	OnSync func(SyncState)

	RequestTimeout  time.Duration
	StrokeRate      rate.Limit
	HistoryCapacity int
}

// Engine owns the operation log and the surface. Local and remote
// operations are applied in the order the engine receives them.
type Engine struct {
	mu      sync.Mutex
	surface Surface
	log     Log
	history *History
	out     *outbox
	logger  *slog.Logger

	onChat func(messenger.Message)
	onSync func(SyncState)

	state    SyncState
	notified SyncState
	syncGen  uint64
	timer    *time.Timer
	timeout  time.Duration
	pages    [][]messenger.Action
	received int

	style    Style
	tool     Tool
	grid     bool
	recent   RecentColors
	inStroke bool
}

// NewEngine returns an engine drawing on opts.Surface.
func NewEngine(opts Options) *Engine {
	if opts.Surface == nil {
		opts.Surface = NewCanvas(800, 600)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.StrokeRate <= 0 {
		opts.StrokeRate = DefaultStrokeRate
	}
	if opts.Sender == nil {
		opts.Sender = discard{}
	}
	return &Engine{
		surface: opts.Surface,
		history: NewHistory(opts.HistoryCapacity),
		out:     newOutbox(opts.Sender, opts.StrokeRate),
		logger:  opts.Logger.With("component", "whiteboard"),
		onChat:  opts.OnChat,
		onSync:  opts.OnSync,
		timeout: opts.RequestTimeout,
		style:   DefaultStyle,
		tool:    Pencil,
	}
}

// unlock releases the engine and reports a changed sync state.
func (e *Engine) unlock() {
	s := e.state
	changed := s != e.notified
	e.notified = s
	e.mu.Unlock()
	if changed && e.onSync != nil {
		e.onSync(s)
	}
}

// SetTool selects the freehand tool for subsequent strokes.
func (e *Engine) SetTool(t Tool) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown tool %q", ErrInvalidOperation, t)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tool = t
	return nil
}

// SetStyle sets the style for subsequent local operations.
func (e *Engine) SetStyle(s Style) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.Color != e.style.Color {
		e.recent.Use(s.Color)
	}
	e.style = styleFrom(s.properties())
}

// SetColor changes only the color of the current style.
func (e *Engine) SetColor(color string) {
	e.mu.Lock()
	s := e.style
	e.mu.Unlock()
	e.SetStyle(s.WithColor(color))
}

// SetGrid toggles snapping shape corners to the grid.
func (e *Engine) SetGrid(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.grid = on
}

// Style returns the current local style.
func (e *Engine) Style() Style {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.style
}

// RecentColors returns recently used colors, newest first.
func (e *Engine) RecentColors() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recent.List()
}

// BeginStroke starts a freehand gesture.
func (e *Engine) BeginStroke() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.beginStrokeLocked()
}

func (e *Engine) beginStrokeLocked() {
	if e.inStroke {
		return
	}
	e.history.Checkpoint(e.surface.Snapshot())
	e.inStroke = true
}

// StrokeSegment draws one segment of the current gesture, starting one if
// needed.
func (e *Engine) StrokeSegment(from, to Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.beginStrokeLocked()
	e.commitLocal(Stroke{Tool: e.tool, From: from, To: to, Style: e.style})
}

// EndStroke finishes the gesture and sends any queued segments.
func (e *Engine) EndStroke() {
	e.mu.Lock()
	e.inStroke = false
	e.mu.Unlock()
	e.out.flush()
}

// AddShape draws a shape between a and b.
func (e *Engine) AddShape(kind ShapeKind, a, b Point, filled bool) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown shape %q", ErrInvalidOperation, kind)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grid {
		a, b = Snap(a), Snap(b)
	}
	e.discreteLocked(Shape{Kind: kind, From: a, To: b, Style: e.style, Filled: filled})
	return nil
}

// AddText places text with its top-left corner at at.
func (e *Engine) AddText(at Point, content string) error {
	if content == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidOperation)
	}
	if len(content) > MaxTextLength {
		return fmt.Errorf("%w: text longer than %d bytes", ErrInvalidOperation, MaxTextLength)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.discreteLocked(Text{At: at, Content: content, Style: e.style})
	return nil
}

// EraseAt clears a disc. A non-positive radius uses the default.
func (e *Engine) EraseAt(center Point, radius float64) {
	if radius <= 0 {
		radius = DefaultEraseRadius
	}
	radius = min(radius, MaxEraseRadius)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.discreteLocked(Erase{Center: center, Radius: radius})
}

// Clear wipes the surface and the log, and tells the peer to do the same.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inStroke = false
	e.history.Checkpoint(e.surface.Snapshot())
	e.reset()
	e.out.send(messenger.Message{Action: Encode(Clear{})})
}

func (e *Engine) discreteLocked(op Operation) {
	e.inStroke = false
	e.history.Checkpoint(e.surface.Snapshot())
	e.commitLocal(op)
}

func (e *Engine) commitLocal(op Operation) {
	e.surface.Draw(op, "")
	e.log.Append(op)
	if s, ok := op.(Stroke); ok {
		e.out.stroke(s)
		return
	}
	e.out.send(messenger.Message{Action: Encode(op)})
}

func (e *Engine) reset() {
	e.surface.Clear()
	e.log.Reset()
}

// Undo repaints the surface as it was before the last local action.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.history.Undo(e.surface.Snapshot())
	if ok {
		e.surface.Restore(snap)
	}
	return ok
}

// Redo reverses the last Undo.
func (e *Engine) Redo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.history.Redo()
	if ok {
		e.surface.Restore(snap)
	}
	return ok
}

// Chat sends a chat line to the peer.
func (e *Engine) Chat(name, text string) bool {
	return e.out.send(messenger.NewChat(name, text))
}

// RequestState asks the peer for its full log. The state returns to ready
// when the reply is applied or the request times out.
func (e *Engine) RequestState() bool {
	e.mu.Lock()
	defer e.unlock()

	sent := e.out.send(messenger.Message{Action: messenger.Action{Type: messenger.KindRequestState}})
	e.state = SyncRequesting
	e.syncGen++
	e.pages, e.received = nil, 0
	e.armTimer()
	return sent
}

func (e *Engine) armTimer() {
	gen := e.syncGen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.timeout, func() { e.expire(gen) })
}

func (e *Engine) expire(gen uint64) {
	e.mu.Lock()
	defer e.unlock()
	if gen != e.syncGen || e.state != SyncRequesting {
		return
	}
	e.logger.Debug("state request timed out", "pages", e.received)
	e.state = SyncReady
	e.timer = nil
	e.pages, e.received = nil, 0
}

// HandleMessage applies a message from the peer.
func (e *Engine) HandleMessage(msg messenger.Message, via messenger.Transport) {
	switch msg.Type {
	case messenger.KindChat:
		if e.onChat != nil {
			e.onChat(msg)
		}

	case messenger.KindStroke, messenger.KindShape, messenger.KindText, messenger.KindErase:
		ops, err := Decode(msg.Action)
		if err != nil {
			e.logger.Warn("Dropping remote operation", "from", msg.From, "via", via, "error", err)
			return
		}
		e.mu.Lock()
		for _, op := range ops {
			e.surface.Draw(op, remoteTint(op))
			e.log.Append(op)
		}
		e.mu.Unlock()

	case messenger.KindClear:
		e.mu.Lock()
		e.out.drop()
		e.reset()
		e.mu.Unlock()

	case messenger.KindRequestState:
		e.answerState()

	case messenger.KindFullState:
		e.applyState(msg)

	default:
		e.logger.Warn("Unhandled message", "type", msg.Type, "from", msg.From)
	}
}

func (e *Engine) answerState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.log.Len() == 0 {
		return
	}
	release := e.log.hold()
	defer release()

	pages := paginate(e.log.Entries(), StatePageBytes)
	for i, data := range pages {
		e.out.send(messenger.Message{
			Action: messenger.Action{Type: messenger.KindFullState},
			Data:   data,
			Page:   i,
			Pages:  len(pages),
		})
	}
}

// paginate encodes ops in order and groups them into pages whose encoded
// size stays under limit. An operation larger than limit gets its own page.
func paginate(ops []Operation, limit int) [][]messenger.Action {
	var (
		pages [][]messenger.Action
		page  []messenger.Action
		size  int
	)
	for _, op := range ops {
		a := Encode(op)
		n := encodedSize(a)
		if len(page) > 0 && size+n > limit {
			pages = append(pages, page)
			page, size = nil, 0
		}
		page = append(page, a)
		size += n
	}
	if len(page) > 0 {
		pages = append(pages, page)
	}
	return pages
}

// encodedSize is the larger of the two wire encodings of a, plus a separator.
func encodedSize(a messenger.Action) int {
	m := messenger.Message{Action: a}
	n := 0
	if b, err := messenger.EncodeFallback(m); err == nil {
		n = len(b)
	}
	if b, err := messenger.EncodeDirect(m); err == nil && len(b) > n {
		n = len(b)
	}
	return n + 1
}

// collect buffers one page of a full-state reply and returns the whole
// reply once every page has arrived.
func (e *Engine) collect(msg messenger.Message) ([]messenger.Action, bool) {
	total := max(msg.Pages, 1)
	if msg.Page < 0 || msg.Page >= total || total > MaxLogEntries {
		e.logger.Warn("Dropping full-state page", "page", msg.Page, "pages", msg.Pages)
		return nil, false
	}
	if len(e.pages) != total {
		e.pages, e.received = make([][]messenger.Action, total), 0
	}
	if e.pages[msg.Page] == nil {
		e.received++
	}
	e.pages[msg.Page] = append([]messenger.Action{}, msg.Data...)
	if e.received < total {
		e.armTimer()
		return nil, false
	}

	var data []messenger.Action
	for _, page := range e.pages {
		data = append(data, page...)
	}
	e.pages, e.received = nil, 0
	return data, true
}

func (e *Engine) applyState(msg messenger.Message) {
	e.mu.Lock()
	defer e.unlock()
	if e.state != SyncRequesting {
		e.logger.Debug("Ignoring unsolicited full-state", "ops", len(msg.Data))
		return
	}
	data, complete := e.collect(msg)
	if !complete {
		return
	}
	e.state = SyncSyncing
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	release := e.log.hold()
	e.surface.Clear()
	var ops []Operation
	for _, a := range data {
		decoded, err := Decode(a)
		if err != nil {
			e.logger.Warn("Skipping invalid operation in full-state", "error", err)
			continue
		}
		for _, op := range decoded {
			if _, ok := op.(Clear); ok {
				ops = ops[:0]
				e.surface.Clear()
				continue
			}
			e.surface.Draw(op, "")
			ops = append(ops, op)
		}
	}
	e.log.Replace(ops)
	release()
	e.history.Reset()
	e.inStroke = false
	e.state = SyncReady
}

type discard struct{}

func (discard) Send(messenger.Message) bool { return false }

func remoteTint(op Operation) string {
	switch op.(type) {
	case Stroke:
		return RemoteStrokeColor
	case Shape:
		return RemoteShapeColor
	case Text:
		return RemoteTextColor
	}
	return ""
}

// SyncState returns the current resynchronisation state.
func (e *Engine) SyncState() SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Log returns a copy of the operation log.
func (e *Engine) Log() []Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.Entries()
}

// CanUndo reports whether there is an earlier snapshot.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

// CanRedo reports whether an undone snapshot can be restored.
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanRedo()
}

// ExportPNG writes the surface as a PNG image.
func (e *Engine) ExportPNG(w io.Writer) error {
	enc, ok := e.surface.(interface{ EncodePNG(io.Writer) error })
	if !ok {
		return ErrExportUnsupported
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return enc.EncodePNG(w)
}

// Close stops the request timer and sends any queued strokes.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()
	e.out.close()
}
