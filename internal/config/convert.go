package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/stepnet-protocol/stepnet/internal/match"
	"github.com/stepnet-protocol/stepnet/internal/session"
)

// sessionFile is the [session] table shared by client and server
// configs. Durations are TOML strings in time.ParseDuration syntax.
type sessionFile struct {
	ProtocolID        uint64 `toml:"protocol_id"`
	ConnectTimeout    string `toml:"connect_timeout"`
	IdleTimeout       string `toml:"idle_timeout"`
	ResendInterval    string `toml:"resend_interval"`
	KeepAliveInterval string `toml:"keepalive_interval"`
	Timestep          string `toml:"timestep"`
	MaxClients        int    `toml:"max_clients"`
	MaxPacketBytes    int    `toml:"max_packet_bytes"`
	MaxBatchMessages  int    `toml:"max_batch_messages"`
	PayloadQueueSize  int    `toml:"payload_queue_size"`
}

// applySession overlays the defined [session] keys onto cfg.
func applySession(meta toml.MetaData, raw sessionFile, cfg *session.Config) error {
	if meta.IsDefined("session", "protocol_id") {
		cfg.ProtocolID = raw.ProtocolID
	}
	var err error
	if meta.IsDefined("session", "connect_timeout") {
		if cfg.ConnectTimeout, err = parseDuration(raw.ConnectTimeout); err != nil {
			return fmt.Errorf("session connect_timeout: %w", err)
		}
	}
	if meta.IsDefined("session", "idle_timeout") {
		if cfg.IdleTimeout, err = parseDuration(raw.IdleTimeout); err != nil {
			return fmt.Errorf("session idle_timeout: %w", err)
		}
	}
	if meta.IsDefined("session", "resend_interval") {
		if cfg.ResendInterval, err = parseDuration(raw.ResendInterval); err != nil {
			return fmt.Errorf("session resend_interval: %w", err)
		}
	}
	if meta.IsDefined("session", "keepalive_interval") {
		if cfg.KeepAliveInterval, err = parseDuration(raw.KeepAliveInterval); err != nil {
			return fmt.Errorf("session keepalive_interval: %w", err)
		}
	}
	if meta.IsDefined("session", "timestep") {
		if cfg.Timestep, err = parseDuration(raw.Timestep); err != nil {
			return fmt.Errorf("session timestep: %w", err)
		}
	}
	if meta.IsDefined("session", "max_clients") {
		cfg.MaxClients = raw.MaxClients
	}
	if meta.IsDefined("session", "max_packet_bytes") {
		cfg.MaxPacketBytes = raw.MaxPacketBytes
	}
	if meta.IsDefined("session", "max_batch_messages") {
		cfg.MaxBatchMessages = raw.MaxBatchMessages
	}
	if meta.IsDefined("session", "payload_queue_size") {
		cfg.PayloadQueueSize = raw.PayloadQueueSize
	}
	return nil
}

func parseDuration(raw string) (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(raw))
}

// Matcher translates a client config into the matcher's view of it:
// matchd endpoint for networked matches, local minting material for
// loopback ones.
func (c ClientConfig) Matcher() match.MatcherConfig {
	mcfg := match.DefaultMatcherConfig()
	mcfg.BaseURL = c.MatcherURL
	mcfg.TokenKey = c.TokenKey
	mcfg.ServerAddr = c.ServerAddr
	mcfg.GrantTimeout = c.Session.IdleTimeout
	return mcfg
}
