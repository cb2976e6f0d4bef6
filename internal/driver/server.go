package driver

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stepnet-protocol/stepnet/internal/session"
)

// ServerOptions configures one standalone server run.
type ServerOptions struct {
	Session  session.Config
	BindAddr string
	// InsecureKey admits shared-key clients when set.
	InsecureKey []byte
	// TokenKey opens matchd connect tokens when set.
	TokenKey []byte
}

// RunServer listens for clients and echoes every payload batch back to
// its sender until a stop is requested.
func RunServer(rt *session.Runtime, opts ServerOptions, flag *StopFlag) (Report, error) {
	logger := log.With().Str("driver", "server").Logger()

	srv, err := session.NewServer(rt, opts.Session, opts.BindAddr, opts.InsecureKey, opts.TokenKey)
	if err != nil {
		return Report{}, err
	}
	if err := srv.Start(); err != nil {
		return Report{}, err
	}
	logger.Info().Str("bind", srv.Addr().String()).Msg("driver_starting")

	var report Report
	defer report.log(logger)
	defer srv.Stop()

	for {
		if flag.Stopped() {
			logger.Info().Msg("stopping_on_request")
			return report, nil
		}

		if err := srv.SendPackets(); err != nil {
			return report, err
		}
		srv.ReceivePackets()
		for {
			index, data, ok := srv.NextPayload()
			if !ok {
				break
			}
			report.BatchesReceived++
			if err := srv.Send(index, data); err != nil {
				logger.Warn().Err(err).Int("client_index", index).Msg("echo_refused")
			} else {
				report.BatchesSent++
			}
		}

		srv.AdvanceTime(opts.Session.Timestep)
		time.Sleep(opts.Session.Timestep)
	}
}
