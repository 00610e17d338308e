package whiteboard

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Prince200510/mini-meet-prince/internal/messenger"
)

// DefaultStrokeRate is the number of stroke messages sent per second.
const DefaultStrokeRate rate.Limit = 60

// Sender transmits application messages to the peer.
type Sender interface {
	Send(msg messenger.Message) bool
}

// outbox coalesces chained stroke segments into polyline messages and
// throttles how often they leave.
type outbox struct {
	mu       sync.Mutex
	sender   Sender
	limiter  *rate.Limiter
	pending  []Stroke
	timer    *time.Timer
	reserved *rate.Reservation
	closed   bool
}

func newOutbox(sender Sender, limit rate.Limit) *outbox {
	return &outbox{sender: sender, limiter: rate.NewLimiter(limit, 1)}
}

// stroke queues s, sending right away when the limiter allows it.
func (o *outbox) stroke(s Stroke) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if n := len(o.pending); n > 0 && !chains(o.pending[n-1], s) {
		o.flushLocked()
	}
	o.pending = append(o.pending, s)

	if o.timer != nil {
		return
	}
	if o.limiter.Allow() {
		o.flushLocked()
		return
	}
	o.reserved = o.limiter.Reserve()
	o.timer = time.AfterFunc(o.reserved.Delay(), o.fire)
}

// send flushes pending strokes, then transmits msg.
func (o *outbox) send(msg messenger.Message) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushLocked()
	if o.closed {
		return false
	}
	return o.sender.Send(msg)
}

func (o *outbox) flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushLocked()
}

// drop discards queued segments without sending them.
func (o *outbox) drop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.reserved.Cancel()
		o.timer, o.reserved = nil, nil
	}
	o.pending = nil
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushLocked()
	o.closed = true
}

func (o *outbox) fire() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timer, o.reserved = nil, nil
	o.flushLocked()
}

func (o *outbox) flushLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.reserved.Cancel()
		o.timer, o.reserved = nil, nil
	}
	if len(o.pending) == 0 || o.closed {
		o.pending = nil
		return
	}

	first := o.pending[0]
	points := make([]Point, 0, len(o.pending)+1)
	points = append(points, first.From)
	for _, s := range o.pending {
		points = append(points, s.To)
	}
	o.pending = nil

	a := Encode(first)
	a.Stroke = points
	o.sender.Send(messenger.Message{Action: a})
}
