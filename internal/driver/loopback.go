package driver

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stepnet-protocol/stepnet/internal/session"
)

// LoopbackOptions configures one in-process client/server run.
type LoopbackOptions struct {
	Session session.Config
	// ClientID of zero means mint a fresh one from the runtime.
	ClientID uint64
	// ClientIndex is the slot the loopback client occupies.
	ClientIndex int
}

// RunLoopback drives a co-located client and server over a bridge,
// single-threaded, until a stop is requested. The server echoes every
// payload batch back to its sender.
//
// Each iteration advances both ends in a fixed order: server send,
// client send, server receive, client receive, client clock, server
// clock.
func RunLoopback(rt *session.Runtime, opts LoopbackOptions, flag *StopFlag) (Report, error) {
	logger := log.With().Str("driver", "loopback").Logger()

	srv, err := session.NewServer(rt, opts.Session, "", nil, nil)
	if err != nil {
		return Report{}, err
	}
	if err := srv.Start(); err != nil {
		return Report{}, err
	}
	defer srv.Stop()

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

	bridge := session.NewBridge()
	if err := srv.ConnectLoopbackClient(bridge, opts.ClientIndex, clientID); err != nil {
		return Report{}, err
	}
	if err := cli.ConnectLoopback(bridge, opts.ClientIndex, clientID, opts.Session.MaxClients); err != nil {
		return Report{}, err
	}
	logger.Info().
		Uint64("client_id", clientID).
		Int("client_index", opts.ClientIndex).
		Msg("loopback_pair_connected")

	var (
		report Report
		source probeSource
	)
	defer report.log(logger)

	for {
		if flag.Stopped() {
			logger.Info().Msg("stopping_on_request")
			return report, cli.Disconnect()
		}

		if batch, err := source.batch(opts.Session); err != nil {
			logger.Warn().Err(err).Msg("batch_build_failed")
		} else if err := cli.QueuePayload(batch); err != nil {
			logger.Warn().Err(err).Msg("payload_queue_refused")
		} else {
			report.BatchesSent++
		}

		if err := srv.SendPackets(); err != nil {
			_ = cli.Disconnect()
			return report, err
		}
		if err := cli.SendPackets(); err != nil {
			_ = cli.Disconnect()
			return report, err
		}
		srv.ReceivePackets()
		cli.ReceivePackets()

		for {
			index, data, ok := srv.NextPayload()
			if !ok {
				break
			}
			if err := srv.Send(index, data); err != nil {
				logger.Warn().Err(err).Int("client_index", index).Msg("echo_refused")
			}
		}
		for data := cli.NextPayload(); data != nil; data = cli.NextPayload() {
			report.absorb(logger, opts.Session, data)
		}

		if cli.Disconnected() {
			logger.Info().Msg("session_ended")
			return report, cli.Disconnect()
		}

		cli.AdvanceTime(opts.Session.Timestep)
		srv.AdvanceTime(opts.Session.Timestep)

		if cli.ConnectionFailed() {
			reason := cli.FailureReason()
			_ = cli.Disconnect()
			return report, fmt.Errorf("%w: %s", ErrConnectionFailed, reason)
		}

		time.Sleep(opts.Session.Timestep)
	}
}
