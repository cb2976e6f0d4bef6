package session

import "errors"

var (
	ErrRuntimeRequired = errors.New("session: nil runtime")
	ErrRuntimeClosed   = errors.New("session: runtime closed")
	ErrNotIdle         = errors.New("session: connect requires idle session")
	ErrNotConnected    = errors.New("session: not connected")
	ErrNotRunning      = errors.New("session: server not running")
	ErrAlreadyRunning  = errors.New("session: server already running")
	ErrInvalidAddr     = errors.New("session: invalid address")
	ErrConduitClosed   = errors.New("session: conduit closed")
	ErrBridgeUnbound   = errors.New("session: loopback bridge endpoint not registered")
	ErrBridgeIndex     = errors.New("session: loopback client index mismatch")
	ErrSlotIndex       = errors.New("session: client index out of range")
	ErrSlotUsed        = errors.New("session: client slot already in use")
	ErrPayloadSize     = errors.New("session: payload exceeds packet budget")
	ErrQueueFull       = errors.New("session: payload queue full")
	ErrShortPacket     = errors.New("session: short packet")
	ErrUnknownPacket   = errors.New("session: unknown packet type")
)
