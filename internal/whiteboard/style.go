package whiteboard

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/Prince200510/mini-meet-prince/internal/messenger"
)

// Drawing defaults
const (
	DefaultColor       = "#6366f1"
	DefaultThickness   = 3.0
	DefaultOpacity     = 1.0
	DefaultFontSize    = 16.0
	DefaultEraseRadius = 15.0
	MaxThickness       = 200.0
	MaxFontSize        = 256.0
	GridSize           = 20.0
	maxRecentColors    = 10
)

// Remote tints make peer operations visually attributable.
const (
	RemoteStrokeColor = "#ef4444"
	RemoteShapeColor  = "#10b981"
	RemoteTextColor   = "#f59e0b"
)

// Style is the appearance of a stroke, shape or text. It is comparable.
type Style struct {
	Color     string
	Thickness float64
	Opacity   float64
	FontSize  float64
	Underline bool
}

// DefaultStyle is the style of a fresh board.
var DefaultStyle = Style{
	Color:     DefaultColor,
	Thickness: DefaultThickness,
	Opacity:   DefaultOpacity,
	FontSize:  DefaultFontSize,
}

// WithColor returns a copy of s using color.
func (s Style) WithColor(color string) Style {
	s.Color = color
	return s
}

func (s Style) properties() *messenger.Properties {
	return &messenger.Properties{
		Color:     s.Color,
		Thickness: s.Thickness,
		Opacity:   s.Opacity,
		FontSize:  s.FontSize,
		Underline: s.Underline,
	}
}

// styleFrom fills any missing property from DefaultStyle.
func styleFrom(p *messenger.Properties) Style {
	s := DefaultStyle
	if p == nil {
		return s
	}
	if _, err := colorful.Hex(p.Color); err == nil {
		s.Color = p.Color
	}
	if p.Thickness > 0 {
		s.Thickness = math.Min(p.Thickness, MaxThickness)
	}
	if p.Opacity > 0 && p.Opacity <= 1 {
		s.Opacity = p.Opacity
	}
	if p.FontSize > 0 {
		s.FontSize = math.Min(p.FontSize, MaxFontSize)
	}
	s.Underline = p.Underline
	return s
}

// rgb parses a #rrggbb color, falling back to the default color.
func rgb(hex string) colorful.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		c, _ = colorful.Hex(DefaultColor)
	}
	return c
}

// Tool is a freehand drawing tool.
type Tool string

// Freehand tools.
const (
	Pencil      Tool = "pencil"
	Pen         Tool = "pen"
	Marker      Tool = "marker"
	Highlighter Tool = "highlighter"
	Brush       Tool = "brush"
)

// Valid reports whether t is a known tool.
func (t Tool) Valid() bool {
	switch t {
	case Pencil, Pen, Marker, Highlighter, Brush:
		return true
	}
	return false
}

// ShapeKind names a shape.
type ShapeKind string

// Shape kinds.
const (
	Rectangle     ShapeKind = "rectangle"
	Process       ShapeKind = "process"
	Circle        ShapeKind = "circle"
	Oval          ShapeKind = "oval"
	Line          ShapeKind = "line"
	Arrow         ShapeKind = "arrow"
	Diamond       ShapeKind = "diamond"
	Star          ShapeKind = "star"
	Polygon       ShapeKind = "polygon"
	Heart         ShapeKind = "heart"
	SpeechBubble  ShapeKind = "speechBubble"
	ThoughtBubble ShapeKind = "thoughtBubble"
)

// ShapeKinds lists every shape in toolbar order.
var ShapeKinds = []ShapeKind{
	Rectangle, Circle, Line, Arrow, Diamond, Process,
	Oval, Star, Polygon, Heart, SpeechBubble, ThoughtBubble,
}

// Valid reports whether k is a known shape.
func (k ShapeKind) Valid() bool {
	for _, s := range ShapeKinds {
		if s == k {
			return true
		}
	}
	return false
}

// Snap rounds p to the nearest grid intersection.
func Snap(p Point) Point {
	return Point{
		X: math.Round(p.X/GridSize) * GridSize,
		Y: math.Round(p.Y/GridSize) * GridSize,
	}
}

// RecentColors keeps the most recently used colors, newest first.
type RecentColors struct {
	colors []string
}

// Use records color as most recent.
func (r *RecentColors) Use(color string) {
	out := make([]string, 0, maxRecentColors)
	out = append(out, color)
	for _, c := range r.colors {
		if c != color && len(out) < maxRecentColors {
			out = append(out, c)
		}
	}
	r.colors = out
}

// List returns the recent colors, newest first.
func (r *RecentColors) List() []string {
	return append([]string(nil), r.colors...)
}
