// Package event defines the row change notifications emitted by a session.
package event

import "fmt"

// Kind is the notification type.
type Kind string

// Notification kinds.
const (
	RowsInserted Kind = "rows_inserted"
	RowsRemoved  Kind = "rows_removed"
	RowsUpdated  Kind = "rows_updated"
	RowMoved     Kind = "row_moved"
)

// Event is a single change notification. For range kinds From..To is inclusive;
// for RowMoved From is the old position and To the new one.
type Event struct {
	Seq  uint64 `json:"seq"`
	Kind Kind   `json:"kind"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%d,%d)", e.Kind, e.From, e.To)
}

// Inserted returns a rowsInserted notification for [from, to].
func Inserted(from, to int) Event { return Event{Kind: RowsInserted, From: from, To: to} }

// Removed returns a rowsRemoved notification for [from, to].
func Removed(from, to int) Event { return Event{Kind: RowsRemoved, From: from, To: to} }

// Updated returns a rowsUpdated notification for [from, to].
func Updated(from, to int) Event { return Event{Kind: RowsUpdated, From: from, To: to} }

// Moved returns a rowMoved notification.
func Moved(from, to int) Event { return Event{Kind: RowMoved, From: from, To: to} }

// Listener receives notifications on the session model context.
// Implementations must not call back into the session synchronously.
type Listener interface {
	Notify(e Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(e Event)

// Notify calls f(e).
func (f ListenerFunc) Notify(e Event) { f(e) }

// Discard drops every notification.
var Discard Listener = ListenerFunc(func(Event) {})
