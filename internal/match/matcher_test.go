package match

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stepnet-protocol/stepnet/internal/auth"
	"github.com/stepnet-protocol/stepnet/internal/testutil/testlog"
)

func TestRequestMatchFound(t *testing.T) {
	testlog.Start(t)

	cfg := testServiceConfig()
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(ts.Close)

	mcfg := DefaultMatcherConfig()
	mcfg.BaseURL = ts.URL
	m, err := NewMatcher(mcfg)
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}

	const clientID = 777
	if got := m.RequestMatch(context.Background(), cfg.ProtocolID, clientID, false); got != StatusFound {
		t.Fatalf("status %s want %s", got, StatusFound)
	}
	token, err := m.ConnectToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	grant, err := auth.OpenToken(cfg.TokenKey, cfg.ProtocolID, token, time.Now())
	if err != nil {
		t.Fatalf("open fetched token: %v", err)
	}
	if grant.ClientID != clientID {
		t.Fatalf("grant client id %d want %d", grant.ClientID, clientID)
	}
}

func TestRequestMatchFailedOnUnknownProtocol(t *testing.T) {
	testlog.Start(t)

	cfg := testServiceConfig()
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(ts.Close)

	mcfg := DefaultMatcherConfig()
	mcfg.BaseURL = ts.URL
	m, err := NewMatcher(mcfg)
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}

	if got := m.RequestMatch(context.Background(), cfg.ProtocolID+1, 1, false); got != StatusFailed {
		t.Fatalf("status %s want %s", got, StatusFailed)
	}
	if _, err := m.ConnectToken(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("token after failed match: got %v want %v", err, ErrNoToken)
	}
}

func TestRequestMatchFailedOnDeadEndpoint(t *testing.T) {
	testlog.Start(t)

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	mcfg := DefaultMatcherConfig()
	mcfg.BaseURL = url
	mcfg.HTTPTimeout = time.Second
	m, err := NewMatcher(mcfg)
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}
	if got := m.RequestMatch(context.Background(), 1, 1, false); got != StatusFailed {
		t.Fatalf("status %s want %s", got, StatusFailed)
	}
}

func TestRequestMatchLoopbackMintsLocally(t *testing.T) {
	testlog.Start(t)

	key := testTokenKey()
	mcfg := DefaultMatcherConfig()
	mcfg.BaseURL = "" // no matchd anywhere
	mcfg.TokenKey = key
	mcfg.ServerAddr = "127.0.0.1:40123"
	m, err := NewMatcher(mcfg)
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}

	const protocolID = 0xAB
	const clientID = 0xCD
	if got := m.RequestMatch(context.Background(), protocolID, clientID, true); got != StatusFound {
		t.Fatalf("status %s want %s", got, StatusFound)
	}
	token, err := m.ConnectToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	grant, err := auth.OpenToken(key, protocolID, token, time.Now())
	if err != nil {
		t.Fatalf("open minted token: %v", err)
	}
	if grant.ClientID != clientID {
		t.Fatalf("grant client id %d want %d", grant.ClientID, clientID)
	}
	if grant.ServerAddr != mcfg.ServerAddr {
		t.Fatalf("grant server %q want %q", grant.ServerAddr, mcfg.ServerAddr)
	}
}

func TestMatcherValidation(t *testing.T) {
	testlog.Start(t)

	if _, err := NewMatcher(MatcherConfig{}); !errors.Is(err, ErrMatcherEndpoint) {
		t.Fatalf("empty config: got %v want %v", err, ErrMatcherEndpoint)
	}
	if _, err := NewMatcher(MatcherConfig{TokenKey: []byte{1}}); !errors.Is(err, auth.ErrKeySize) {
		t.Fatalf("short key: got %v want %v", err, auth.ErrKeySize)
	}

	m, err := NewMatcher(MatcherConfig{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}
	if _, err := m.ConnectToken(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("token before match: got %v want %v", err, ErrNoToken)
	}

	// loopback without a key resolves Failed, it does not panic
	if got := m.RequestMatch(context.Background(), 1, 1, true); got != StatusFailed {
		t.Fatalf("loopback without key: status %s want %s", got, StatusFailed)
	}
}
