package whiteboard

// Log growth bounds.
const (
	MaxLogEntries      = 1000
	TruncatedLogLength = 800
)

// Log is the ordered record of applied operations. It is not safe for
// concurrent use; the engine serializes access.
type Log struct {
	ops      []Operation
	inFlight int
}

// Append adds op and truncates the log when it has grown too long.
func (l *Log) Append(op Operation) {
	l.ops = append(l.ops, op)
	l.truncate()
}

// Replace swaps the whole log for ops.
func (l *Log) Replace(ops []Operation) {
	l.ops = append([]Operation(nil), ops...)
}

// Reset empties the log.
func (l *Log) Reset() {
	l.ops = nil
}

// Len returns the number of entries.
func (l *Log) Len() int { return len(l.ops) }

// Entries returns a copy of the log in order.
func (l *Log) Entries() []Operation {
	return append([]Operation(nil), l.ops...)
}

// hold suppresses truncation until the returned release is called.
func (l *Log) hold() (release func()) {
	l.inFlight++
	return func() {
		l.inFlight--
		l.truncate()
	}
}

func (l *Log) truncate() {
	if l.inFlight > 0 || len(l.ops) <= MaxLogEntries {
		return
	}
	keep := make([]Operation, TruncatedLogLength)
	copy(keep, l.ops[len(l.ops)-TruncatedLogLength:])
	l.ops = keep
}
