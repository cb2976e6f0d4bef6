package driver

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/stepnet-protocol/stepnet/internal/match"
	"github.com/stepnet-protocol/stepnet/internal/session"
)

// InsecureOptions configures one insecure client run.
type InsecureOptions struct {
	Session session.Config
	// Key is the 32-byte shared key presented instead of a token.
	Key []byte
	// ClientID of zero means mint a fresh one from the runtime.
	ClientID   uint64
	ServerAddr string
}

// RunInsecure connects with the shared key and pumps the session until
// it ends.
func RunInsecure(rt *session.Runtime, opts InsecureOptions, flag *StopFlag) (Report, error) {
	logger := log.With().Str("driver", "insecure").Logger()

	cli, err := session.NewClient(rt, opts.Session)
	if err != nil {
		return Report{}, err
	}
	clientID := opts.ClientID
	if clientID == 0 {
		if clientID, err = rt.NewClientID(); err != nil {
			return Report{}, err
		}
	}

	logger.Info().
		Uint64("client_id", clientID).
		Str("server", opts.ServerAddr).
		Msg("driver_starting")
	if err := cli.ConnectInsecure(opts.Key, clientID, opts.ServerAddr); err != nil {
		return Report{}, err
	}
	return runClientLoop(cli, opts.Session, flag, logger)
}

// SecureOptions configures one token-authenticated client run.
type SecureOptions struct {
	Session session.Config
	Matcher match.MatcherConfig
	// LoopbackToken asks the matcher to mint locally instead of
	// calling matchd.
	LoopbackToken bool
	// ClientID of zero means mint a fresh one from the runtime.
	ClientID uint64
	// ServerAddrOverride replaces the server address embedded in
	// locally minted grants. Tokens issued by matchd already carry
	// their placement; the override cannot reach inside them.
	ServerAddrOverride string
}

// RunSecure resolves a match first and connects only on Found. A match
// that resolves Failed aborts the run before any connect attempt.
func RunSecure(rt *session.Runtime, opts SecureOptions, flag *StopFlag) (Report, error) {
	logger := log.With().Str("driver", "secure").Logger()

	if opts.ServerAddrOverride != "" {
		if opts.LoopbackToken {
			opts.Matcher.ServerAddr = opts.ServerAddrOverride
		} else {
			logger.Info().
				Str("override", opts.ServerAddrOverride).
				Msg("override_ignored_for_matchd_tokens")
		}
	}

	matcher, err := match.NewMatcher(opts.Matcher)
	if err != nil {
		return Report{}, err
	}
	clientID := opts.ClientID
	if clientID == 0 {
		if clientID, err = rt.NewClientID(); err != nil {
			return Report{}, err
		}
	}

	status := matcher.RequestMatch(context.Background(), opts.Session.ProtocolID, clientID, opts.LoopbackToken)
	if status != match.StatusFound {
		return Report{}, fmt.Errorf("%w: status %s", ErrMatchFailed, status)
	}
	token, err := matcher.ConnectToken()
	if err != nil {
		return Report{}, err
	}

	cli, err := session.NewClient(rt, opts.Session)
	if err != nil {
		return Report{}, err
	}
	logger.Info().Uint64("client_id", clientID).Msg("driver_starting")
	if err := cli.ConnectSecure(clientID, token); err != nil {
		return Report{}, err
	}
	return runClientLoop(cli, opts.Session, flag, logger)
}
