package session

// State is the session lifecycle position. Disconnected and
// ConnectionFailed are absorbing until the owner calls Disconnect,
// which returns the session to Idle for reuse.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateConnectionFailed
)

var stateNames = map[State]string{
	StateIdle:             "idle",
	StateConnecting:       "connecting",
	StateConnected:        "connected",
	StateDisconnected:     "disconnected",
	StateConnectionFailed: "connection_failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// FailReason qualifies a ConnectionFailed state. It is attached data,
// not an extra lifecycle state.
type FailReason int32

const (
	FailNone FailReason = iota
	FailTimeout
	FailDenied
	FailInvalidToken
	FailTransport
)

var failReasonNames = map[FailReason]string{
	FailNone:         "none",
	FailTimeout:      "handshake_timeout",
	FailDenied:       "connection_denied",
	FailInvalidToken: "invalid_connect_token",
	FailTransport:    "transport_misconfigured",
}

func (r FailReason) String() string {
	if name, ok := failReasonNames[r]; ok {
		return name
	}
	return "unknown"
}
