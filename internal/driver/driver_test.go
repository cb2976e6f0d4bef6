package driver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stepnet-protocol/stepnet/internal/auth"
	"github.com/stepnet-protocol/stepnet/internal/match"
	"github.com/stepnet-protocol/stepnet/internal/session"
	"github.com/stepnet-protocol/stepnet/internal/testutil/testlog"
)

type runResult struct {
	report Report
	err    error
}

func newTestRuntime(t *testing.T) *session.Runtime {
	t.Helper()
	rt, err := session.NewRuntime(zerolog.Nop())
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// fastConfig shrinks the timestep so loops spin quickly in tests.
func fastConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.Timestep = time.Millisecond
	return cfg
}

func testKey(fill byte) []byte {
	key := make([]byte, auth.KeyBytes)
	for i := range key {
		key[i] = fill + byte(i)
	}
	return key
}

// pumpEchoServer drives a server loop on its own goroutine until stop
// is closed, echoing every payload to its sender.
func pumpEchoServer(t *testing.T, srv *session.Server, step time.Duration) {
	t.Helper()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = srv.SendPackets()
			srv.ReceivePackets()
			for {
				index, data, ok := srv.NextPayload()
				if !ok {
					break
				}
				_ = srv.Send(index, data)
			}
			srv.AdvanceTime(step)
			time.Sleep(time.Millisecond)
		}
	}()
	t.Cleanup(func() {
		close(stop)
		<-done
		srv.Stop()
	})
}

func TestStopFlag(t *testing.T) {
	testlog.Start(t)

	var flag StopFlag
	if flag.Stopped() {
		t.Fatalf("fresh flag must read false")
	}
	flag.Set()
	if !flag.Stopped() {
		t.Fatalf("set flag must read true")
	}
}

func TestRunLoopbackStopsCleanly(t *testing.T) {
	testlog.Start(t)

	rt := newTestRuntime(t)
	cfg := fastConfig()
	var flag StopFlag

	resCh := make(chan runResult, 1)
	go func() {
		report, err := RunLoopback(rt, LoopbackOptions{Session: cfg}, &flag)
		resCh <- runResult{report, err}
	}()

	time.Sleep(200 * time.Millisecond)
	flag.Set()

	var res runResult
	select {
	case res = <-resCh:
	case <-time.After(5 * time.Second):
		t.Fatalf("loopback driver ignored the stop flag")
	}
	if res.err != nil {
		t.Fatalf("loopback run: %v", res.err)
	}
	if res.report.BatchesSent == 0 {
		t.Fatalf("no batches sent: %+v", res.report)
	}
	if res.report.MessagesReceived == 0 {
		t.Fatalf("no echoed messages decoded: %+v", res.report)
	}
	if res.report.DecodeFaults != 0 {
		t.Fatalf("unexpected decode faults: %+v", res.report)
	}
}

func TestRunInsecureAgainstEchoServer(t *testing.T) {
	testlog.Start(t)

	rt := newTestRuntime(t)
	cfg := fastConfig()
	key := testKey(0)

	srv, err := session.NewServer(rt, cfg, "127.0.0.1:0", key, nil)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pumpEchoServer(t, srv, cfg.Timestep)

	var flag StopFlag
	resCh := make(chan runResult, 1)
	go func() {
		report, err := RunInsecure(rt, InsecureOptions{
			Session:    cfg,
			Key:        key,
			ServerAddr: srv.Addr().String(),
		}, &flag)
		resCh <- runResult{report, err}
	}()

	time.Sleep(400 * time.Millisecond)
	flag.Set()

	var res runResult
	select {
	case res = <-resCh:
	case <-time.After(5 * time.Second):
		t.Fatalf("insecure driver ignored the stop flag")
	}
	if res.err != nil {
		t.Fatalf("insecure run: %v", res.err)
	}
	if res.report.BatchesSent == 0 || res.report.BatchesReceived == 0 {
		t.Fatalf("no traffic echoed: %+v", res.report)
	}
}

func TestRunSecureWithLocalToken(t *testing.T) {
	testlog.Start(t)

	rt := newTestRuntime(t)
	cfg := fastConfig()
	tokenKey := testKey(9)

	srv, err := session.NewServer(rt, cfg, "127.0.0.1:0", nil, tokenKey)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pumpEchoServer(t, srv, cfg.Timestep)

	mcfg := match.DefaultMatcherConfig()
	mcfg.BaseURL = ""
	mcfg.TokenKey = tokenKey
	mcfg.ServerAddr = "10.255.255.1:1" // overridden below

	var flag StopFlag
	resCh := make(chan runResult, 1)
	go func() {
		report, err := RunSecure(rt, SecureOptions{
			Session:            cfg,
			Matcher:            mcfg,
			LoopbackToken:      true,
			ServerAddrOverride: srv.Addr().String(),
		}, &flag)
		resCh <- runResult{report, err}
	}()

	time.Sleep(400 * time.Millisecond)
	flag.Set()

	var res runResult
	select {
	case res = <-resCh:
	case <-time.After(5 * time.Second):
		t.Fatalf("secure driver ignored the stop flag")
	}
	if res.err != nil {
		t.Fatalf("secure run: %v", res.err)
	}
	if res.report.BatchesSent == 0 || res.report.BatchesReceived == 0 {
		t.Fatalf("no traffic echoed: %+v", res.report)
	}
}

func TestRunSecureAbortsOnFailedMatch(t *testing.T) {
	testlog.Start(t)

	rt := newTestRuntime(t)
	cfg := fastConfig()

	ts := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(ts.Close)

	mcfg := match.DefaultMatcherConfig()
	mcfg.BaseURL = ts.URL
	mcfg.HTTPTimeout = time.Second

	var flag StopFlag
	_, err := RunSecure(rt, SecureOptions{Session: cfg, Matcher: mcfg}, &flag)
	if !errors.Is(err, ErrMatchFailed) {
		t.Fatalf("failed match: got %v want %v", err, ErrMatchFailed)
	}
}

func TestRunSecureEndToEndThroughMatchd(t *testing.T) {
	testlog.Start(t)

	rt := newTestRuntime(t)
	cfg := fastConfig()
	tokenKey := testKey(3)

	srv, err := session.NewServer(rt, cfg, "127.0.0.1:0", nil, tokenKey)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pumpEchoServer(t, srv, cfg.Timestep)

	scfg := match.DefaultServiceConfig()
	scfg.ProtocolID = cfg.ProtocolID
	scfg.TokenKey = tokenKey
	scfg.ServerAddr = srv.Addr().String()
	svc, err := match.NewService(scfg)
	if err != nil {
		t.Fatalf("matchd: %v", err)
	}
	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(ts.Close)

	mcfg := match.DefaultMatcherConfig()
	mcfg.BaseURL = ts.URL

	var flag StopFlag
	resCh := make(chan runResult, 1)
	go func() {
		report, err := RunSecure(rt, SecureOptions{Session: cfg, Matcher: mcfg}, &flag)
		resCh <- runResult{report, err}
	}()

	time.Sleep(400 * time.Millisecond)
	flag.Set()

	var res runResult
	select {
	case res = <-resCh:
	case <-time.After(5 * time.Second):
		t.Fatalf("secure driver ignored the stop flag")
	}
	if res.err != nil {
		t.Fatalf("matchd-backed run: %v", res.err)
	}
	if res.report.BatchesSent == 0 || res.report.BatchesReceived == 0 {
		t.Fatalf("no traffic echoed: %+v", res.report)
	}
}
