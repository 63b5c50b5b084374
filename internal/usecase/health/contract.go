package health

import "context"

// DBPinger checks archive database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Len() int
}
