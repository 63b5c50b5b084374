package event

import (
	"sync"

	"github.com/kailas-cloud/hitdex/internal/domain"
)

// Log is a bounded ring of notifications with monotonically increasing sequence numbers.
// Goroutine-safe: the session writes, HTTP readers poll.
type Log struct {
	mu   sync.Mutex
	buf  []Event
	head int    // index of the oldest entry
	n    int    // number of retained entries
	next uint64 // sequence assigned to the next event
}

// NewLog creates a log retaining at most size events.
func NewLog(size int) *Log {
	if size <= 0 {
		size = 1
	}
	return &Log{buf: make([]Event, size), next: 1}
}

// Notify appends an event, evicting the oldest when full.
func (l *Log) Notify(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = l.next
	l.next++

	idx := (l.head + l.n) % len(l.buf)
	l.buf[idx] = e
	if l.n < len(l.buf) {
		l.n++
		return
	}
	l.head = (l.head + 1) % len(l.buf)
}

// Since returns retained events with Seq > after, oldest first, and the last assigned sequence.
// Returns domain.ErrEventsTruncated if events after `after` were already evicted.
func (l *Log) Since(after uint64) ([]Event, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	last := l.next - 1
	if after >= last {
		return nil, last, nil
	}
	if l.n == 0 {
		return nil, last, nil
	}
	oldest := l.buf[l.head].Seq
	if after+1 < oldest {
		return nil, last, domain.ErrEventsTruncated
	}

	out := make([]Event, 0, last-after)
	for i := 0; i < l.n; i++ {
		e := l.buf[(l.head+i)%len(l.buf)]
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out, last, nil
}

// Last returns the last assigned sequence, 0 if nothing was logged.
func (l *Log) Last() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next - 1
}
