package session

import (
	"testing"
	"time"

	"github.com/stepnet-protocol/stepnet/internal/testutil/testlog"
)

func TestDefaultConfigValidates(t *testing.T) {
	testlog.Start(t)
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero_protocol_id", func(c *Config) { c.ProtocolID = 0 }},
		{"zero_connect_timeout", func(c *Config) { c.ConnectTimeout = 0 }},
		{"zero_idle_timeout", func(c *Config) { c.IdleTimeout = 0 }},
		{"zero_resend_interval", func(c *Config) { c.ResendInterval = 0 }},
		{"resend_beyond_connect_timeout", func(c *Config) { c.ResendInterval = c.ConnectTimeout + time.Second }},
		{"zero_keepalive_interval", func(c *Config) { c.KeepAliveInterval = 0 }},
		{"keepalive_beyond_idle_timeout", func(c *Config) { c.KeepAliveInterval = c.IdleTimeout + time.Second }},
		{"zero_timestep", func(c *Config) { c.Timestep = 0 }},
		{"zero_max_clients", func(c *Config) { c.MaxClients = 0 }},
		{"tiny_packet_budget", func(c *Config) { c.MaxPacketBytes = 64 }},
		{"zero_batch_cap", func(c *Config) { c.MaxBatchMessages = 0 }},
		{"zero_payload_queue", func(c *Config) { c.PayloadQueueSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
