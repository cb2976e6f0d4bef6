package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stepnet-protocol/stepnet/internal/auth"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := NewRuntime(zerolog.Nop())
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func testKeyBytes(fill byte) []byte {
	key := make([]byte, auth.KeyBytes)
	for i := range key {
		key[i] = fill + byte(i)
	}
	return key
}

// pumpNetPair runs one iteration of a networked client/server pair and
// gives the sockets a moment to deliver.
func pumpNetPair(c *Client, s *Server, step time.Duration) {
	_ = c.SendPackets()
	s.ReceivePackets()
	_ = s.SendPackets()
	c.ReceivePackets()
	c.AdvanceTime(step)
	s.AdvanceTime(step)
	time.Sleep(time.Millisecond)
}

func pumpNetUntil(c *Client, s *Server, step, timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pumpNetPair(c, s, step)
		if cond() {
			return true
		}
	}
	return cond()
}

// pumpLoopback runs one iteration in loopback order: both sends first,
// then both receives, then both clocks.
func pumpLoopback(c *Client, s *Server, step time.Duration) {
	_ = s.SendPackets()
	_ = c.SendPackets()
	s.ReceivePackets()
	c.ReceivePackets()
	c.AdvanceTime(step)
	s.AdvanceTime(step)
}
