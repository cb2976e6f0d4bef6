package session

import (
	"fmt"
	"time"
)

// DefaultPort is assumed when an address override omits the port.
const DefaultPort = 40000

// Config bundles the protocol identity, timeout and budget knobs shared
// by clients and servers. It is built once per run and treated as
// read-only afterwards.
type Config struct {
	ProtocolID uint64

	// ConnectTimeout bounds the whole handshake; an unanswered connect
	// fails rather than retrying forever.
	ConnectTimeout time.Duration
	// IdleTimeout disconnects a connected peer that has gone silent.
	// A secure connect narrows it to the token's grant timeout.
	IdleTimeout time.Duration
	// ResendInterval paces handshake retransmits.
	ResendInterval time.Duration
	// KeepAliveInterval paces keepalives on an otherwise quiet session.
	KeepAliveInterval time.Duration
	// Timestep is the driver loop's fixed logical clock increment.
	Timestep time.Duration

	MaxClients       int
	MaxPacketBytes   int
	MaxBatchMessages int
	PayloadQueueSize int
}

func DefaultConfig() Config {
	return Config{
		ProtocolID:        0x53544550_4E455431,
		ConnectTimeout:    5 * time.Second,
		IdleTimeout:       10 * time.Second,
		ResendInterval:    100 * time.Millisecond,
		KeepAliveInterval: 100 * time.Millisecond,
		Timestep:          time.Second / 60,
		MaxClients:        16,
		MaxPacketBytes:    1220,
		MaxBatchMessages:  64,
		PayloadQueueSize:  256,
	}
}

// PayloadBudget is the most payload bytes one packet can carry after
// the payload packet framing.
func (c Config) PayloadBudget() int {
	return c.MaxPacketBytes - payloadOverhead
}

func (c Config) Validate() error {
	if c.ProtocolID == 0 {
		return fmt.Errorf("session: protocol id required")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("session: connect timeout must be positive: %v", c.ConnectTimeout)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("session: idle timeout must be positive: %v", c.IdleTimeout)
	}
	if c.ResendInterval <= 0 || c.ResendInterval > c.ConnectTimeout {
		return fmt.Errorf("session: resend interval out of range: %v", c.ResendInterval)
	}
	if c.KeepAliveInterval <= 0 || c.KeepAliveInterval > c.IdleTimeout {
		return fmt.Errorf("session: keepalive interval out of range: %v", c.KeepAliveInterval)
	}
	if c.Timestep <= 0 {
		return fmt.Errorf("session: timestep must be positive: %v", c.Timestep)
	}
	if c.MaxClients < 1 {
		return fmt.Errorf("session: max clients must be at least 1: %d", c.MaxClients)
	}
	if c.MaxPacketBytes < minPacketBudget {
		return fmt.Errorf("session: packet budget below %d: %d", minPacketBudget, c.MaxPacketBytes)
	}
	if c.MaxBatchMessages < 1 {
		return fmt.Errorf("session: batch message cap must be at least 1: %d", c.MaxBatchMessages)
	}
	if c.PayloadQueueSize < 1 {
		return fmt.Errorf("session: payload queue size must be at least 1: %d", c.PayloadQueueSize)
	}
	return nil
}
