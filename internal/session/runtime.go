package session

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Runtime scopes the services shared by every session in one run. It
// replaces process-global init/shutdown: construct it before the first
// session, thread it through constructors, close it after the last
// session is torn down.
type Runtime struct {
	log    zerolog.Logger
	closed atomic.Bool
}

// NewRuntime verifies the process can mint identities and returns a
// live handle. Sessions constructed against a closed or nil runtime
// are refused.
func NewRuntime(logger zerolog.Logger) (*Runtime, error) {
	var probe [8]byte
	if _, err := rand.Read(probe[:]); err != nil {
		return nil, fmt.Errorf("session: entropy unavailable: %w", err)
	}
	return &Runtime{log: logger}, nil
}

// Close marks the runtime unusable for new sessions. Existing sessions
// keep their references; Close is not a teardown of live connections.
func (rt *Runtime) Close() error {
	rt.closed.Store(true)
	return nil
}

// NewClientID mints a random 64-bit client identity, unique per
// connecting session.
func (rt *Runtime) NewClientID() (uint64, error) {
	if err := rt.check(); err != nil {
		return 0, err
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("session: client id: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// Logger returns the runtime's base logger.
func (rt *Runtime) Logger() zerolog.Logger { return rt.log }

func (rt *Runtime) check() error {
	if rt == nil {
		return ErrRuntimeRequired
	}
	if rt.closed.Load() {
		return ErrRuntimeClosed
	}
	return nil
}
