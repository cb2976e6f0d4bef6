// Package config owns the TOML surface of the stepnet binaries: the
// per-binary config structs, their defaults, the file loaders, and the
// templates cmd/configgen writes.
//
// Loaders overlay only the keys actually present in the file on top of
// the defaults, so a two-line config stays a two-line config.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/stepnet-protocol/stepnet/internal/auth"
	"github.com/stepnet-protocol/stepnet/internal/match"
	"github.com/stepnet-protocol/stepnet/internal/session"
)

// Development keys baked into the defaults so a fresh checkout can run
// client against server and matchd with no config files at all. Any
// real deployment generates its own keys and carries them in TOML.
const (
	devInsecureKeyHex = "746869732069732064656661756c7420696e73656375726520646576206b6579"
	devTokenKeyHex    = "64656661756c7420746f6b656e207365616c696e67206b65792c206465762121"
)

// DevInsecureKey is the default shared key for the insecure connect
// path.
func DevInsecureKey() []byte {
	key, err := auth.ParseKey(devInsecureKeyHex)
	if err != nil {
		panic(fmt.Sprintf("config: bad built-in insecure key: %v", err))
	}
	return key
}

// DevTokenKey is the default connect-token sealing key shared by
// matchd and the server.
func DevTokenKey() []byte {
	key, err := auth.ParseKey(devTokenKeyHex)
	if err != nil {
		panic(fmt.Sprintf("config: bad built-in token key: %v", err))
	}
	return key
}

// ClientConfig drives the clientctl, securectl and loopctl binaries.
type ClientConfig struct {
	// ServerAddr is where insecure connects dial and where locally
	// minted tokens point.
	ServerAddr string
	// MatcherURL locates matchd for secure connects.
	MatcherURL string
	// LocalTokens skips matchd and mints connect tokens in-process
	// against TokenKey.
	LocalTokens bool
	InsecureKey []byte
	TokenKey    []byte
	Session     session.Config
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerAddr:  "127.0.0.1:40000",
		MatcherURL:  "http://127.0.0.1:8090",
		InsecureKey: DevInsecureKey(),
		TokenKey:    DevTokenKey(),
		Session:     session.DefaultConfig(),
	}
}

// ServerConfig drives serverctl. A nil key disables that admission
// path.
type ServerConfig struct {
	BindAddr    string
	InsecureKey []byte
	TokenKey    []byte
	Session     session.Config
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		BindAddr:    "0.0.0.0:40000",
		InsecureKey: DevInsecureKey(),
		TokenKey:    DevTokenKey(),
		Session:     session.DefaultConfig(),
	}
}

type clientFile struct {
	ServerAddr  string      `toml:"server_addr"`
	MatcherURL  string      `toml:"matcher_url"`
	LocalTokens bool        `toml:"local_tokens"`
	InsecureKey string      `toml:"insecure_key"`
	TokenKey    string      `toml:"token_key"`
	Session     sessionFile `toml:"session"`
}

type serverFile struct {
	BindAddr    string      `toml:"bind_addr"`
	InsecureKey string      `toml:"insecure_key"`
	TokenKey    string      `toml:"token_key"`
	Session     sessionFile `toml:"session"`
}

type matchdFile struct {
	Addr         string   `toml:"addr"`
	ProtocolID   uint64   `toml:"protocol_id"`
	TokenKey     string   `toml:"token_key"`
	ServerAddr   string   `toml:"server_addr"`
	TokenTTL     string   `toml:"token_ttl"`
	GrantTimeout string   `toml:"grant_timeout"`
	CorsOrigins  []string `toml:"cors_origins"`
}

// LoadClientConfig overlays path on the client defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}

	if meta.IsDefined("server_addr") {
		cfg.ServerAddr = strings.TrimSpace(raw.ServerAddr)
	}
	if meta.IsDefined("matcher_url") {
		cfg.MatcherURL = strings.TrimSpace(raw.MatcherURL)
	}
	if meta.IsDefined("local_tokens") {
		cfg.LocalTokens = raw.LocalTokens
	}
	if meta.IsDefined("insecure_key") {
		if cfg.InsecureKey, err = auth.ParseKey(raw.InsecureKey); err != nil {
			return ClientConfig{}, fmt.Errorf("client config insecure_key: %w", err)
		}
	}
	if meta.IsDefined("token_key") {
		if cfg.TokenKey, err = auth.ParseKey(raw.TokenKey); err != nil {
			return ClientConfig{}, fmt.Errorf("client config token_key: %w", err)
		}
	}
	if err := applySession(meta, raw.Session, &cfg.Session); err != nil {
		return ClientConfig{}, err
	}
	if err := cfg.Session.Validate(); err != nil {
		return ClientConfig{}, err
	}
	if strings.TrimSpace(cfg.ServerAddr) == "" {
		return ClientConfig{}, fmt.Errorf("client config missing server_addr")
	}
	return cfg, nil
}

// LoadServerConfig overlays path on the server defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}

	if meta.IsDefined("bind_addr") {
		cfg.BindAddr = strings.TrimSpace(raw.BindAddr)
	}
	if meta.IsDefined("insecure_key") {
		if cfg.InsecureKey, err = auth.ParseKey(raw.InsecureKey); err != nil {
			return ServerConfig{}, fmt.Errorf("server config insecure_key: %w", err)
		}
	}
	if meta.IsDefined("token_key") {
		if cfg.TokenKey, err = auth.ParseKey(raw.TokenKey); err != nil {
			return ServerConfig{}, fmt.Errorf("server config token_key: %w", err)
		}
	}
	if err := applySession(meta, raw.Session, &cfg.Session); err != nil {
		return ServerConfig{}, err
	}
	if err := cfg.Session.Validate(); err != nil {
		return ServerConfig{}, err
	}
	if strings.TrimSpace(cfg.BindAddr) == "" {
		return ServerConfig{}, fmt.Errorf("server config missing bind_addr")
	}
	return cfg, nil
}

// LoadMatchdConfig overlays path on the matchd defaults.
func LoadMatchdConfig(path string) (match.ServiceConfig, error) {
	cfg := match.DefaultServiceConfig()
	cfg.TokenKey = DevTokenKey()

	var raw matchdFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return match.ServiceConfig{}, fmt.Errorf("load matchd config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("protocol_id") {
		cfg.ProtocolID = raw.ProtocolID
	}
	if meta.IsDefined("token_key") {
		if cfg.TokenKey, err = auth.ParseKey(raw.TokenKey); err != nil {
			return match.ServiceConfig{}, fmt.Errorf("matchd config token_key: %w", err)
		}
	}
	if meta.IsDefined("server_addr") {
		cfg.ServerAddr = strings.TrimSpace(raw.ServerAddr)
	}
	if meta.IsDefined("token_ttl") {
		if cfg.TokenTTL, err = parseDuration(raw.TokenTTL); err != nil {
			return match.ServiceConfig{}, fmt.Errorf("matchd config token_ttl: %w", err)
		}
	}
	if meta.IsDefined("grant_timeout") {
		if cfg.GrantTimeout, err = parseDuration(raw.GrantTimeout); err != nil {
			return match.ServiceConfig{}, fmt.Errorf("matchd config grant_timeout: %w", err)
		}
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CorsOrigins
	}
	if err := cfg.Validate(); err != nil {
		return match.ServiceConfig{}, err
	}
	return cfg, nil
}

// LoadClientConfigIfPresent returns the defaults when no file exists at
// path. The driver binaries are flagless, so a missing well-known
// config is the normal case, not an error.
func LoadClientConfigIfPresent(path string) (ClientConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultClientConfig(), nil
	}
	return LoadClientConfig(path)
}

// LoadServerConfigIfPresent returns the defaults when no file exists at
// path.
func LoadServerConfigIfPresent(path string) (ServerConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultServerConfig(), nil
	}
	return LoadServerConfig(path)
}

// LoadMatchdConfigIfPresent returns the defaults (with the dev token
// key) when no file exists at path.
func LoadMatchdConfigIfPresent(path string) (match.ServiceConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := match.DefaultServiceConfig()
		cfg.TokenKey = DevTokenKey()
		return cfg, nil
	}
	return LoadMatchdConfig(path)
}
