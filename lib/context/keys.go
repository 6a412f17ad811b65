package context

// Keys for values placed in fiber locals before a websocket upgrade. The
// upgraded connection only exposes string keyed locals.
const (
	RemoteAddress = "remote_address"
	UserAgent     = "user_agent"
)
