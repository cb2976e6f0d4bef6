package match

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stepnet-protocol/stepnet/internal/auth"
	"github.com/stepnet-protocol/stepnet/internal/testutil/testlog"
)

func testServiceConfig() ServiceConfig {
	cfg := DefaultServiceConfig()
	cfg.TokenKey = testTokenKey()
	return cfg
}

func testTokenKey() []byte {
	key := make([]byte, auth.KeyBytes)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func TestMatchEndpointIssuesToken(t *testing.T) {
	testlog.Start(t)

	cfg := testServiceConfig()
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	const clientID = 424242
	path := "/match/" + strconv.FormatUint(cfg.ProtocolID, 10) + "/" + strconv.FormatUint(clientID, 10)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var body matchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ClientID != clientID {
		t.Fatalf("client id %d want %d", body.ClientID, clientID)
	}
	token, err := base64.StdEncoding.DecodeString(body.ConnectToken)
	if err != nil {
		t.Fatalf("token base64: %v", err)
	}
	if len(token) != auth.TokenBytes {
		t.Fatalf("token %d bytes want %d", len(token), auth.TokenBytes)
	}

	grant, err := auth.OpenToken(cfg.TokenKey, cfg.ProtocolID, token, time.Now())
	if err != nil {
		t.Fatalf("open issued token: %v", err)
	}
	if grant.ClientID != clientID {
		t.Fatalf("grant client id %d want %d", grant.ClientID, clientID)
	}
	if grant.ServerAddr != cfg.ServerAddr {
		t.Fatalf("grant server %q want %q", grant.ServerAddr, cfg.ServerAddr)
	}
	if grant.Timeout != cfg.GrantTimeout {
		t.Fatalf("grant timeout %v want %v", grant.Timeout, cfg.GrantTimeout)
	}
}

func TestMatchEndpointRejects(t *testing.T) {
	testlog.Start(t)

	cfg := testServiceConfig()
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	protocol := strconv.FormatUint(cfg.ProtocolID, 10)
	cases := []struct {
		name string
		path string
		code int
	}{
		{"garbled_protocol", "/match/abc/1", http.StatusBadRequest},
		{"garbled_client", "/match/" + protocol + "/xyz", http.StatusBadRequest},
		{"unknown_protocol", "/match/12345/1", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rr := httptest.NewRecorder()
			svc.Handler().ServeHTTP(rr, req)
			if rr.Code != tc.code {
				t.Fatalf("GET %s: status %d want %d body=%s", tc.path, rr.Code, tc.code, rr.Body.String())
			}
		})
	}
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)

	svc, err := NewService(testServiceConfig())
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		svc.Handler().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s: status %d body=%s", path, rr.Code, rr.Body.String())
		}
	}
}

func TestServiceConfigValidate(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name   string
		mutate func(*ServiceConfig)
	}{
		{"missing_listen_addr", func(c *ServiceConfig) { c.ListenAddr = " " }},
		{"zero_protocol", func(c *ServiceConfig) { c.ProtocolID = 0 }},
		{"short_key", func(c *ServiceConfig) { c.TokenKey = []byte{1, 2} }},
		{"missing_server_addr", func(c *ServiceConfig) { c.ServerAddr = "" }},
		{"zero_ttl", func(c *ServiceConfig) { c.TokenTTL = 0 }},
		{"zero_grant_timeout", func(c *ServiceConfig) { c.GrantTimeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testServiceConfig()
			tc.mutate(&cfg)
			if _, err := NewService(cfg); err == nil {
				t.Fatalf("expected config rejection")
			}
		})
	}
}
