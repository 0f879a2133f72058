package ledger

import "github.com/warp/ledger-engine/generic"

// RequestContext carries the acting user and the request's notion of
// "today". It is passed explicitly so concurrent requests never share it.
type RequestContext struct {
	User  string
	Today generic.Date
}

// NewRequestContext returns a context for user dated today.
func NewRequestContext(user string) RequestContext {
	return RequestContext{User: user, Today: generic.Today()}
}
