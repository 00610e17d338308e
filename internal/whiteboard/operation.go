package whiteboard

import (
	"errors"
	"fmt"
	"math"

	"github.com/Prince200510/mini-meet-prince/internal/messenger"
)

// ErrInvalidOperation is returned when a wire action cannot be turned into
// an operation.
var ErrInvalidOperation = errors.New("invalid whiteboard operation")

// Point is a surface coordinate.
type Point = messenger.Point

// Limits on decoded geometry.
const (
	MaxCoordinate  = 16384.0
	MaxEraseRadius = 1000.0
	MaxTextLength  = 500
)

func inBounds(p Point) bool {
	return math.Abs(p.X) <= MaxCoordinate && math.Abs(p.Y) <= MaxCoordinate
}

// Operation is one immutable whiteboard action. The implementations in this
// file are the only ones.
type Operation interface {
	kind() messenger.Kind
}

// Stroke is one segment of a freehand gesture.
type Stroke struct {
	Tool     Tool
	From, To Point
	Style    Style
}

// Shape is a geometric figure bounded by two corner points.
type Shape struct {
	Kind     ShapeKind
	From, To Point
	Style    Style
	Filled   bool
}

// Erase clears a disc of the surface.
type Erase struct {
	Center Point
	Radius float64
}

// Text is a run of text anchored at its top-left corner.
type Text struct {
	At      Point
	Content string
	Style   Style
}

// Clear wipes the surface and the operation log.
type Clear struct{}

func (Stroke) kind() messenger.Kind { return messenger.KindStroke }
func (Shape) kind() messenger.Kind  { return messenger.KindShape }
func (Erase) kind() messenger.Kind  { return messenger.KindErase }
func (Text) kind() messenger.Kind   { return messenger.KindText }
func (Clear) kind() messenger.Kind  { return messenger.KindClear }

// Encode converts op to its wire form.
func Encode(op Operation) messenger.Action {
	switch o := op.(type) {
	case Stroke:
		return messenger.Action{
			Type:       messenger.KindStroke,
			Tool:       string(o.Tool),
			Stroke:     []Point{o.From, o.To},
			Properties: o.Style.properties(),
		}
	case Shape:
		from, to := o.From, o.To
		return messenger.Action{
			Type:       messenger.KindShape,
			Shape:      string(o.Kind),
			A:          &from,
			B:          &to,
			Filled:     o.Filled,
			Properties: o.Style.properties(),
		}
	case Erase:
		return messenger.Action{Type: messenger.KindErase, X: o.Center.X, Y: o.Center.Y, R: o.Radius}
	case Text:
		return messenger.Action{
			Type:       messenger.KindText,
			X:          o.At.X,
			Y:          o.At.Y,
			Text:       o.Content,
			Properties: o.Style.properties(),
		}
	case Clear:
		return messenger.Action{Type: messenger.KindClear}
	default:
		panic(fmt.Sprintf("whiteboard: unknown operation %T", op))
	}
}

// Decode converts a wire action into operations. A stroke polyline of n
// points yields n-1 segments.
func Decode(a messenger.Action) ([]Operation, error) {
	switch a.Type {
	case messenger.KindStroke:
		if len(a.Stroke) < 2 {
			return nil, fmt.Errorf("%w: stroke needs at least two points", ErrInvalidOperation)
		}
		tool := Tool(a.Tool)
		if tool == "" {
			tool = Pencil
		}
		if !tool.Valid() {
			return nil, fmt.Errorf("%w: unknown tool %q", ErrInvalidOperation, a.Tool)
		}
		for _, p := range a.Stroke {
			if !inBounds(p) {
				return nil, fmt.Errorf("%w: stroke point %v out of range", ErrInvalidOperation, p)
			}
		}
		style := styleFrom(a.Properties)
		ops := make([]Operation, 0, len(a.Stroke)-1)
		for i := 1; i < len(a.Stroke); i++ {
			ops = append(ops, Stroke{Tool: tool, From: a.Stroke[i-1], To: a.Stroke[i], Style: style})
		}
		return ops, nil

	case messenger.KindShape:
		kind := ShapeKind(a.Shape)
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: unknown shape %q", ErrInvalidOperation, a.Shape)
		}
		if a.A == nil || a.B == nil {
			return nil, fmt.Errorf("%w: shape needs two corners", ErrInvalidOperation)
		}
		if !inBounds(*a.A) || !inBounds(*a.B) {
			return nil, fmt.Errorf("%w: shape corner out of range", ErrInvalidOperation)
		}
		return []Operation{Shape{Kind: kind, From: *a.A, To: *a.B, Style: styleFrom(a.Properties), Filled: a.Filled}}, nil

	case messenger.KindErase:
		r := a.R
		if r <= 0 {
			r = DefaultEraseRadius
		}
		if !(r <= MaxEraseRadius) || !inBounds(Point{X: a.X, Y: a.Y}) {
			return nil, fmt.Errorf("%w: erase at (%v, %v) radius %v out of range", ErrInvalidOperation, a.X, a.Y, a.R)
		}
		return []Operation{Erase{Center: Point{X: a.X, Y: a.Y}, Radius: r}}, nil

	case messenger.KindText:
		if a.Text == "" {
			return nil, fmt.Errorf("%w: empty text", ErrInvalidOperation)
		}
		if len(a.Text) > MaxTextLength {
			return nil, fmt.Errorf("%w: text longer than %d bytes", ErrInvalidOperation, MaxTextLength)
		}
		if !inBounds(Point{X: a.X, Y: a.Y}) {
			return nil, fmt.Errorf("%w: text anchor out of range", ErrInvalidOperation)
		}
		return []Operation{Text{At: Point{X: a.X, Y: a.Y}, Content: a.Text, Style: styleFrom(a.Properties)}}, nil

	case messenger.KindClear:
		return []Operation{Clear{}}, nil

	default:
		return nil, fmt.Errorf("%w: %q is not a drawing action", ErrInvalidOperation, a.Type)
	}
}

// chains reports whether next continues the polyline ending at prev.
func chains(prev, next Stroke) bool {
	return prev.To == next.From && prev.Tool == next.Tool && prev.Style == next.Style
}
