package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stepnet-protocol/stepnet/internal/testutil/testlog"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadClientConfigOverlaysOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)

	path := writeFile(t, "client.toml", `
server_addr = "10.0.0.5:41000"

[session]
connect_timeout = "2s"
`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerAddr != "10.0.0.5:41000" {
		t.Fatalf("server_addr not applied: %q", cfg.ServerAddr)
	}
	if cfg.Session.ConnectTimeout != 2*time.Second {
		t.Fatalf("connect_timeout not applied: %v", cfg.Session.ConnectTimeout)
	}

	def := DefaultClientConfig()
	if cfg.MatcherURL != def.MatcherURL {
		t.Fatalf("undefined matcher_url must keep default: %q", cfg.MatcherURL)
	}
	if cfg.Session.IdleTimeout != def.Session.IdleTimeout {
		t.Fatalf("undefined idle_timeout must keep default: %v", cfg.Session.IdleTimeout)
	}
	if !bytes.Equal(cfg.InsecureKey, def.InsecureKey) {
		t.Fatalf("undefined insecure_key must keep default")
	}
}

func TestLoadClientConfigRejectsBadValues(t *testing.T) {
	testlog.Start(t)

	cases := map[string]string{
		"bad_key":      `insecure_key = "zz"`,
		"bad_duration": "[session]\ntimestep = \"fast\"",
		"bad_session":  "[session]\nmax_clients = 0",
		"empty_addr":   `server_addr = " "`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "client.toml", body)
			if _, err := LoadClientConfig(path); err == nil {
				t.Fatalf("config %q must be rejected", body)
			}
		})
	}
}

func TestLoadServerConfig(t *testing.T) {
	testlog.Start(t)

	path := writeFile(t, "server.toml", `
bind_addr = "127.0.0.1:0"

[session]
max_clients = 4
keepalive_interval = "50ms"
`)
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:0" {
		t.Fatalf("bind_addr not applied: %q", cfg.BindAddr)
	}
	if cfg.Session.MaxClients != 4 {
		t.Fatalf("max_clients not applied: %d", cfg.Session.MaxClients)
	}
	if cfg.Session.KeepAliveInterval != 50*time.Millisecond {
		t.Fatalf("keepalive_interval not applied: %v", cfg.Session.KeepAliveInterval)
	}
}

func TestLoadMatchdConfig(t *testing.T) {
	testlog.Start(t)

	path := writeFile(t, "matchd.toml", `
addr = ":9999"
server_addr = "192.168.1.7:40000"
token_ttl = "30s"
`)
	cfg, err := LoadMatchdConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("addr not applied: %q", cfg.ListenAddr)
	}
	if cfg.ServerAddr != "192.168.1.7:40000" {
		t.Fatalf("server_addr not applied: %q", cfg.ServerAddr)
	}
	if cfg.TokenTTL != 30*time.Second {
		t.Fatalf("token_ttl not applied: %v", cfg.TokenTTL)
	}
	if !bytes.Equal(cfg.TokenKey, DevTokenKey()) {
		t.Fatalf("undefined token_key must keep the dev default")
	}
}

func TestLoadIfPresentFallsBackToDefaults(t *testing.T) {
	testlog.Start(t)

	missing := filepath.Join(t.TempDir(), "nope.toml")
	cfg, err := LoadClientConfigIfPresent(missing)
	if err != nil {
		t.Fatalf("missing config must not error: %v", err)
	}
	def := DefaultClientConfig()
	if cfg.ServerAddr != def.ServerAddr {
		t.Fatalf("defaults expected, got %q", cfg.ServerAddr)
	}

	scfg, err := LoadServerConfigIfPresent(missing)
	if err != nil {
		t.Fatalf("missing server config must not error: %v", err)
	}
	if scfg.BindAddr != DefaultServerConfig().BindAddr {
		t.Fatalf("server defaults expected, got %q", scfg.BindAddr)
	}

	mcfg, err := LoadMatchdConfigIfPresent(missing)
	if err != nil {
		t.Fatalf("missing matchd config must not error: %v", err)
	}
	if err := mcfg.Validate(); err != nil {
		t.Fatalf("matchd defaults must validate: %v", err)
	}
}

// Every shipped template must load back through its own loader.
func TestTemplatesRoundTripThroughLoaders(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	for _, kind := range []string{"client", "server", "matchd"} {
		path := filepath.Join(dir, kind+".toml")
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s template: %v", kind, err)
		}
		var err error
		switch kind {
		case "client":
			_, err = LoadClientConfig(path)
		case "server":
			_, err = LoadServerConfig(path)
		case "matchd":
			_, err = LoadMatchdConfig(path)
		}
		if err != nil {
			t.Fatalf("%s template does not load: %v", kind, err)
		}
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "client.toml")
	if err := WriteTemplate(path, "client", false); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteTemplate(path, "client", false); err == nil {
		t.Fatalf("second write without force must fail")
	}
	if err := WriteTemplate(path, "client", true); err != nil {
		t.Fatalf("forced write: %v", err)
	}
}

func TestTemplateUnknownKind(t *testing.T) {
	testlog.Start(t)

	if _, err := Template("ghost"); err == nil {
		t.Fatalf("unknown kind must be rejected")
	}
}

func TestMatcherConversion(t *testing.T) {
	testlog.Start(t)

	cfg := DefaultClientConfig()
	cfg.MatcherURL = "http://example.test:8090"
	mcfg := cfg.Matcher()
	if mcfg.BaseURL != cfg.MatcherURL {
		t.Fatalf("base url: %q", mcfg.BaseURL)
	}
	if !bytes.Equal(mcfg.TokenKey, cfg.TokenKey) {
		t.Fatalf("token key must carry over")
	}
	if mcfg.ServerAddr != cfg.ServerAddr {
		t.Fatalf("server addr: %q", mcfg.ServerAddr)
	}
	if mcfg.GrantTimeout != cfg.Session.IdleTimeout {
		t.Fatalf("grant timeout: %v", mcfg.GrantTimeout)
	}
}
