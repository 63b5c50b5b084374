package hit

import (
	"net"
	"strconv"
)

// Endpoint is a remote source that answered a query.
type Endpoint struct {
	Host         string
	Port         int
	Firewalled   bool
	RelayCapable bool
}

// Key identifies the endpoint for deduplication. Routing flags do not participate.
func (e Endpoint) Key() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
