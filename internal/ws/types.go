package ws

const (
	// client - server
	MsgTap  = "tap"
	MsgPing = "ping"

	// server - client
	MsgState = "state"
	MsgPong  = "pong"
	MsgError = "error"
)
