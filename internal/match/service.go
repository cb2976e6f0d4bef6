package match

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/stepnet-protocol/stepnet/internal/auth"
	"github.com/stepnet-protocol/stepnet/internal/observability"
	"github.com/stepnet-protocol/stepnet/internal/session"
)

const shutdownGrace = 5 * time.Second

// ServiceConfig configures one matchd instance.
type ServiceConfig struct {
	ListenAddr string
	// ProtocolID is the only protocol this instance issues tokens for.
	ProtocolID uint64
	// TokenKey seals the private grant; it is shared with the game
	// server fleet and never with clients.
	TokenKey []byte
	// ServerAddr is the game server endpoint embedded in every grant.
	ServerAddr   string
	TokenTTL     time.Duration
	GrantTimeout time.Duration
	CORSOrigins  []string
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:   ":8090",
		ProtocolID:   session.DefaultConfig().ProtocolID,
		ServerAddr:   "127.0.0.1:40000",
		TokenTTL:     45 * time.Second,
		GrantTimeout: 10 * time.Second,
	}
}

func (c ServiceConfig) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("match: listen address required")
	}
	if c.ProtocolID == 0 {
		return fmt.Errorf("match: protocol id required")
	}
	if len(c.TokenKey) != auth.KeyBytes {
		return fmt.Errorf("match: token key: %w", auth.ErrKeySize)
	}
	if strings.TrimSpace(c.ServerAddr) == "" {
		return fmt.Errorf("match: server address required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("match: token ttl must be positive: %v", c.TokenTTL)
	}
	if c.GrantTimeout <= 0 {
		return fmt.Errorf("match: grant timeout must be positive: %v", c.GrantTimeout)
	}
	return nil
}

// Service is the matchd HTTP surface: one token-issuing route plus the
// health and metrics plumbing every node here carries.
type Service struct {
	cfg      ServiceConfig
	log      zerolog.Logger
	router   *gin.Engine
	appeared time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	observability.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware("matchd"))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	svc := &Service{
		cfg:      cfg,
		log:      log.With().Str("component", "matchd").Logger(),
		router:   r,
		appeared: time.Now(),
	}
	svc.registerRoutes()
	return svc, nil
}

func (s *Service) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.appeared).String(),
			"component": "matchd",
		})
	})
	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":     true,
			"uptime":    time.Since(s.appeared).String(),
			"component": "matchd",
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/match/:protocol_id/:client_id", s.handleMatch)
}

func (s *Service) handleMatch(c *gin.Context) {
	start := time.Now()

	protocolID, err := strconv.ParseUint(c.Param("protocol_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "protocol id must be a decimal u64"})
		return
	}
	clientID, err := strconv.ParseUint(c.Param("client_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client id must be a decimal u64"})
		return
	}
	if protocolID != s.cfg.ProtocolID {
		observability.RecordTokenIssue("matchd", "failed", time.Since(start))
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown protocol"})
		return
	}

	token, err := auth.MintToken(s.cfg.TokenKey, protocolID, auth.Grant{
		ClientID:   clientID,
		Timeout:    s.cfg.GrantTimeout,
		ServerAddr: s.cfg.ServerAddr,
	}, s.cfg.TokenTTL, time.Now())
	if err != nil {
		s.log.Error().Err(err).Uint64("client_id", clientID).Msg("token_mint_failed")
		observability.RecordTokenIssue("matchd", "failed", time.Since(start))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token mint failed"})
		return
	}

	observability.RecordTokenIssue("matchd", "found", time.Since(start))
	s.log.Info().
		Uint64("client_id", clientID).
		Str("server", s.cfg.ServerAddr).
		Msg("token_issued")
	c.JSON(http.StatusOK, gin.H{
		"client_id":     clientID,
		"connect_token": base64.StdEncoding.EncodeToString(token),
	})
}

// Handler exposes the router for in-process tests.
func (s *Service) Handler() http.Handler { return s.router }

// Run serves until SIGINT/SIGTERM, then drains in-flight requests.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *Service) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.ListenAddr, Handler: s.router}
	s.log.Info().Str("listen", s.cfg.ListenAddr).Msg("matchd_listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	err := g.Wait()
	s.log.Info().Msg("matchd_stopped")
	return err
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
