package match

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stepnet-protocol/stepnet/internal/auth"
)

var (
	ErrMatcherEndpoint = errors.New("match: matcher needs a base url or a token key")
	ErrNoToken         = errors.New("match: no connect token, request a match first")
)

// Status is the outcome of one match request.
type Status int

const (
	StatusPending Status = iota
	StatusFound
	StatusFailed
)

var statusNames = map[Status]string{
	StatusPending: "pending",
	StatusFound:   "found",
	StatusFailed:  "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type MatcherConfig struct {
	// BaseURL locates the matchd endpoint for networked matches.
	BaseURL string
	// TokenKey, ServerAddr, TokenTTL and GrantTimeout configure local
	// minting for loopback matches.
	TokenKey     []byte
	ServerAddr   string
	TokenTTL     time.Duration
	GrantTimeout time.Duration

	HTTPTimeout time.Duration
}

func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		BaseURL:      "http://127.0.0.1:8090",
		ServerAddr:   "127.0.0.1:40000",
		TokenTTL:     45 * time.Second,
		GrantTimeout: 10 * time.Second,
		HTTPTimeout:  5 * time.Second,
	}
}

// matchResponse is the matchd wire shape.
type matchResponse struct {
	ClientID     uint64 `json:"client_id"`
	ConnectToken string `json:"connect_token"`
}

// Matcher resolves match requests for one client session at a time. It
// is not safe for concurrent use; drivers own exactly one.
type Matcher struct {
	cfg  MatcherConfig
	http *http.Client
	log  zerolog.Logger

	status Status
	token  []byte
}

func NewMatcher(cfg MatcherConfig) (*Matcher, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" && len(cfg.TokenKey) == 0 {
		return nil, ErrMatcherEndpoint
	}
	if len(cfg.TokenKey) != 0 && len(cfg.TokenKey) != auth.KeyBytes {
		return nil, fmt.Errorf("match: token key: %w", auth.ErrKeySize)
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultMatcherConfig().HTTPTimeout
	}
	return &Matcher{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
		log:  log.With().Str("component", "matcher").Logger(),
	}, nil
}

// RequestMatch resolves one match and returns the final status. A
// loopback request never leaves the process: the token is minted
// against the configured key instead of fetched.
func (m *Matcher) RequestMatch(ctx context.Context, protocolID, clientID uint64, loopback bool) Status {
	m.status = StatusPending
	m.token = nil
	if loopback {
		m.status = m.mintLocal(protocolID, clientID)
	} else {
		m.status = m.fetch(ctx, protocolID, clientID)
	}
	m.log.Info().
		Uint64("protocol_id", protocolID).
		Uint64("client_id", clientID).
		Bool("loopback", loopback).
		Str("status", m.status.String()).
		Msg("match_resolved")
	return m.status
}

// Status reports the outcome of the last RequestMatch.
func (m *Matcher) Status() Status { return m.status }

// ConnectToken hands out the token of a Found match.
func (m *Matcher) ConnectToken() ([]byte, error) {
	if m.status != StatusFound || m.token == nil {
		return nil, ErrNoToken
	}
	return m.token, nil
}

func (m *Matcher) fetch(ctx context.Context, protocolID, clientID uint64) Status {
	url := fmt.Sprintf("%s/match/%s/%s",
		strings.TrimRight(m.cfg.BaseURL, "/"),
		strconv.FormatUint(protocolID, 10),
		strconv.FormatUint(clientID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("match_request_build_failed")
		return StatusFailed
	}
	resp, err := m.http.Do(req)
	if err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("match_request_failed")
		return StatusFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.log.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("match_rejected")
		return StatusFailed
	}
	var body matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		m.log.Warn().Err(err).Msg("match_response_malformed")
		return StatusFailed
	}
	if body.ClientID != clientID {
		m.log.Warn().
			Uint64("requested", clientID).
			Uint64("granted", body.ClientID).
			Msg("match_identity_mismatch")
		return StatusFailed
	}
	token, err := base64.StdEncoding.DecodeString(body.ConnectToken)
	if err != nil || len(token) != auth.TokenBytes {
		m.log.Warn().Err(err).Int("bytes", len(token)).Msg("connect_token_malformed")
		return StatusFailed
	}

	m.token = token
	return StatusFound
}

func (m *Matcher) mintLocal(protocolID, clientID uint64) Status {
	if len(m.cfg.TokenKey) != auth.KeyBytes {
		m.log.Error().Msg("loopback_match_needs_token_key")
		return StatusFailed
	}
	token, err := auth.MintToken(m.cfg.TokenKey, protocolID, auth.Grant{
		ClientID:   clientID,
		Timeout:    m.cfg.GrantTimeout,
		ServerAddr: m.cfg.ServerAddr,
	}, m.cfg.TokenTTL, time.Now())
	if err != nil {
		m.log.Error().Err(err).Msg("loopback_mint_failed")
		return StatusFailed
	}
	m.token = token
	return StatusFound
}
