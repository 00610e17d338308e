package whiteboard

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"math"

	"github.com/fogleman/gg"
)

// glyphHeight is the pixel height of gg's built-in font face.
const glyphHeight = 13.0

// Snapshot is an opaque copy of a surface's pixels.
type Snapshot []byte

// Surface is the raster the engine draws on.
type Surface interface {
	// Draw renders op. A non-empty tint replaces the operation's color.
	Draw(op Operation, tint string)
	Clear()
	Snapshot() Snapshot
	Restore(Snapshot)
}

// Canvas is an in-memory RGBA surface.
type Canvas struct {
	img *image.RGBA
	dc  *gg.Context
}

// NewCanvas returns a transparent canvas of the given size.
func NewCanvas(width, height int) *Canvas {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	return &Canvas{img: img, dc: gg.NewContextForRGBA(img)}
}

// Image exposes the backing image. Callers must not retain it across draws.
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Equal reports whether both canvases hold identical pixels.
func (c *Canvas) Equal(other *Canvas) bool {
	return c.img.Rect == other.img.Rect && bytes.Equal(c.img.Pix, other.img.Pix)
}

// Blank reports whether every pixel is fully transparent.
func (c *Canvas) Blank() bool {
	for _, b := range c.img.Pix {
		if b != 0 {
			return false
		}
	}
	return true
}

// EncodePNG writes the canvas as a PNG image.
func (c *Canvas) EncodePNG(w io.Writer) error {
	return png.Encode(w, c.img)
}

// Snapshot copies the current pixels.
func (c *Canvas) Snapshot() Snapshot {
	return append(Snapshot(nil), c.img.Pix...)
}

// Restore repaints the canvas from s. Snapshots of a different size are ignored.
func (c *Canvas) Restore(s Snapshot) {
	if len(s) != len(c.img.Pix) {
		return
	}
	copy(c.img.Pix, s)
}

// Clear makes every pixel transparent.
func (c *Canvas) Clear() {
	for i := range c.img.Pix {
		c.img.Pix[i] = 0
	}
}

// Draw renders op.
func (c *Canvas) Draw(op Operation, tint string) {
	switch o := op.(type) {
	case Stroke:
		if tint != "" {
			o.Style.Color = tint
		}
		c.stroke(o)
	case Shape:
		if tint != "" {
			o.Style.Color = tint
		}
		c.shape(o)
	case Text:
		if tint != "" {
			o.Style.Color = tint
		}
		c.text(o)
	case Erase:
		c.erase(o)
	case Clear:
		c.Clear()
	}
}

func (c *Canvas) setColor(hex string, alpha float64) {
	col := rgb(hex)
	c.dc.SetRGBA(col.R, col.G, col.B, alpha)
}

func (c *Canvas) stroke(s Stroke) {
	dc := c.dc
	dc.Push()
	defer dc.Pop()

	width, alpha := s.Style.Thickness, s.Style.Opacity
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	switch s.Tool {
	case Marker:
		width *= 1.5
		alpha *= 0.7
		dc.SetLineCap(gg.LineCapSquare)
	case Highlighter:
		width *= 2
		alpha *= 0.3
		dc.SetLineCap(gg.LineCapSquare)
	case Brush:
		r := s.Style.Thickness / 2
		b := c.img.Rect
		from, to, ok := clipSegment(s.From, s.To,
			float64(b.Min.X)-r, float64(b.Min.Y)-r, float64(b.Max.X)+r, float64(b.Max.Y)+r)
		if !ok {
			return
		}
		c.setColor(s.Style.Color, alpha*0.8)
		dist := math.Hypot(to.X-from.X, to.Y-from.Y)
		steps := math.Max(1, math.Floor(dist/2))
		for i := 0.0; i <= steps; i++ {
			x := from.X + (to.X-from.X)*(i/steps)
			y := from.Y + (to.Y-from.Y)*(i/steps)
			dc.DrawCircle(x, y, r)
			dc.Fill()
		}
		return
	}

	c.setColor(s.Style.Color, alpha)
	dc.SetLineWidth(width)
	dc.DrawLine(s.From.X, s.From.Y, s.To.X, s.To.Y)
	dc.Stroke()
}

// clipSegment clips a-b to the given box (Liang-Barsky). It reports false
// when the segment misses the box entirely.
func clipSegment(a, b Point, minX, minY, maxX, maxY float64) (Point, Point, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-dx, a.X - minX},
		{dx, maxX - a.X},
		{-dy, a.Y - minY},
		{dy, maxY - a.Y},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return a, b, false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return a, b, false
			}
			t1 = math.Min(t1, t)
		}
	}
	return Point{X: a.X + t0*dx, Y: a.Y + t0*dy}, Point{X: a.X + t1*dx, Y: a.Y + t1*dy}, true
}

func (c *Canvas) shape(s Shape) {
	dc := c.dc
	dc.Push()
	defer dc.Pop()

	c.setColor(s.Style.Color, s.Style.Opacity)
	dc.SetLineWidth(s.Style.Thickness)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	a, b := s.From, s.To
	minX, minY := math.Min(a.X, b.X), math.Min(a.Y, b.Y)
	w, h := math.Abs(b.X-a.X), math.Abs(b.Y-a.Y)
	cx, cy := (a.X+b.X)/2, (a.Y+b.Y)/2

	paint := func() {
		if s.Filled {
			dc.Fill()
		} else {
			dc.Stroke()
		}
	}

	switch s.Kind {
	case Rectangle, Process:
		dc.DrawRectangle(minX, minY, w, h)
		paint()

	case Circle:
		dc.DrawCircle(a.X, a.Y, math.Hypot(b.X-a.X, b.Y-a.Y))
		paint()

	case Oval:
		dc.DrawEllipse(cx, cy, w/2, h/2)
		paint()

	case Line:
		dc.DrawLine(a.X, a.Y, b.X, b.Y)
		dc.Stroke()

	case Arrow:
		const head = 15.0
		angle := math.Atan2(b.Y-a.Y, b.X-a.X)
		dc.DrawLine(a.X, a.Y, b.X, b.Y)
		dc.DrawLine(b.X, b.Y, b.X-head*math.Cos(angle-math.Pi/6), b.Y-head*math.Sin(angle-math.Pi/6))
		dc.DrawLine(b.X, b.Y, b.X-head*math.Cos(angle+math.Pi/6), b.Y-head*math.Sin(angle+math.Pi/6))
		dc.Stroke()

	case Diamond:
		dc.MoveTo(cx, a.Y)
		dc.LineTo(b.X, cy)
		dc.LineTo(cx, b.Y)
		dc.LineTo(a.X, cy)
		dc.ClosePath()
		paint()

	case Star:
		outer := math.Min(w, h) / 2
		inner := outer * 0.4
		for i := 0; i < 10; i++ {
			r := outer
			if i%2 == 1 {
				r = inner
			}
			angle := float64(i) * math.Pi / 5
			dc.LineTo(cx+r*math.Cos(angle), cy+r*math.Sin(angle))
		}
		dc.ClosePath()
		paint()

	case Polygon:
		const sides = 6
		r := math.Min(w, h) / 2
		for i := 0; i < sides; i++ {
			angle := float64(i) * 2 * math.Pi / sides
			dc.LineTo(cx+r*math.Cos(angle), cy+r*math.Sin(angle))
		}
		dc.ClosePath()
		paint()

	case Heart:
		top, mid := minY, minX+w/2
		dc.MoveTo(mid, top+h/4)
		dc.CubicTo(mid, top, mid-w/2, top, mid-w/2, top+h/4)
		dc.CubicTo(mid-w/2, top+h/2, mid, top+h/2, mid, top+h)
		dc.CubicTo(mid, top+h/2, mid+w/2, top+h/2, mid+w/2, top+h/4)
		dc.CubicTo(mid+w/2, top, mid, top, mid, top+h/4)
		dc.ClosePath()
		paint()

	case SpeechBubble:
		const radius, tailW, tailH = 10.0, 20.0, 15.0
		bodyH := math.Max(h-tailH, 1)
		dc.DrawRoundedRectangle(minX, minY, w, bodyH, radius)
		dc.MoveTo(minX+w*0.2, minY+bodyH)
		dc.LineTo(minX+w*0.2-tailW/2, minY+h)
		dc.LineTo(minX+w*0.2+tailW/2, minY+bodyH)
		paint()

	case ThoughtBubble:
		main := math.Max(math.Min(w, h-30)/2, 1)
		mx, my := minX+w/2, minY+main
		dc.DrawCircle(mx, my, main)
		paint()
		dc.DrawCircle(mx-main*0.6, my+main*0.8, main*0.3)
		paint()
		dc.DrawCircle(mx-main*0.9, my+main*1.2, main*0.15)
		paint()
	}
}

func (c *Canvas) text(t Text) {
	dc := c.dc
	dc.Push()
	defer dc.Pop()

	c.setColor(t.Style.Color, t.Style.Opacity)
	scale := t.Style.FontSize / glyphHeight
	dc.ScaleAbout(scale, scale, t.At.X, t.At.Y)
	dc.DrawStringAnchored(t.Content, t.At.X, t.At.Y, 0, 1)

	if t.Style.Underline {
		w, _ := dc.MeasureString(t.Content)
		y := t.At.Y + glyphHeight + 2
		dc.SetLineWidth(1)
		dc.DrawLine(t.At.X, y, t.At.X+w, y)
		dc.Stroke()
	}
}

// erase clears every pixel whose center lies inside the disc.
func (c *Canvas) erase(e Erase) {
	b := c.img.Rect
	x0 := max(b.Min.X, int(math.Floor(e.Center.X-e.Radius)))
	x1 := min(b.Max.X, int(math.Ceil(e.Center.X+e.Radius))+1)
	y0 := max(b.Min.Y, int(math.Floor(e.Center.Y-e.Radius)))
	y1 := min(b.Max.Y, int(math.Ceil(e.Center.Y+e.Radius))+1)
	r2 := e.Radius * e.Radius

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			dx, dy := float64(x)+0.5-e.Center.X, float64(y)+0.5-e.Center.Y
			if dx*dx+dy*dy > r2 {
				continue
			}
			i := c.img.PixOffset(x, y)
			c.img.Pix[i], c.img.Pix[i+1], c.img.Pix[i+2], c.img.Pix[i+3] = 0, 0, 0, 0
		}
	}
}
