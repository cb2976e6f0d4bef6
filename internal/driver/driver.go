package driver

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stepnet-protocol/stepnet/internal/protocol"
	"github.com/stepnet-protocol/stepnet/internal/session"
)

var (
	ErrConnectionFailed = errors.New("driver: connection failed")
	ErrMatchFailed      = errors.New("driver: match failed")
)

// probesPerBatch is how many probe messages one steady-state iteration
// queues.
const probesPerBatch = 4

// StopFlag is the cooperative quit signal. The loop reads it once per
// iteration; the signal watcher (or a test) is the single writer.
type StopFlag struct {
	v atomic.Bool
}

func (f *StopFlag) Set() { f.v.Store(true) }

func (f *StopFlag) Stopped() bool { return f.v.Load() }

// WatchSignals trips flag on SIGINT or SIGTERM. The returned stop
// function releases the watcher.
func WatchSignals(flag *StopFlag, log zerolog.Logger) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			log.Info().Str("signal", sig.String()).Msg("stop_requested")
			flag.Set()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// Report summarizes one run's payload traffic.
type Report struct {
	BatchesSent      uint64
	BatchesReceived  uint64
	MessagesReceived uint64
	DecodeFaults     uint64
}

// probeSource deals probe batches with a sequence that keeps
// incrementing across batches.
type probeSource struct {
	next uint16
}

func (p *probeSource) batch(cfg session.Config) ([]byte, error) {
	count := probesPerBatch
	if count > cfg.MaxBatchMessages {
		count = cfg.MaxBatchMessages
	}
	msgs := make([]protocol.Message, 0, count)
	for i := 0; i < count; i++ {
		msgs = append(msgs, &protocol.Probe{Sequence: p.next})
		p.next++
	}
	return protocol.WriteBatch(msgs, cfg.PayloadBudget())
}

// absorb decodes one received payload batch into the report, counting
// per-message faults without failing the run.
func (r *Report) absorb(log zerolog.Logger, cfg session.Config, data []byte) {
	msgs, faults, err := protocol.ReadBatch(data, cfg.MaxBatchMessages)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(data)).Msg("batch_unreadable")
		return
	}
	r.BatchesReceived++
	r.MessagesReceived += uint64(len(msgs))
	r.DecodeFaults += uint64(len(faults))
	for _, f := range faults {
		log.Debug().Int("index", f.Index).Str("kind", f.Kind.String()).Err(f.Err).Msg("message_fault")
	}
}

func (r Report) log(log zerolog.Logger) {
	log.Info().
		Uint64("batches_sent", r.BatchesSent).
		Uint64("batches_received", r.BatchesReceived).
		Uint64("messages_received", r.MessagesReceived).
		Uint64("decode_faults", r.DecodeFaults).
		Msg("run_report")
}

// runClientLoop pumps one client session from wherever it is now until
// a stop request, a disconnect, or a connection failure. Clean ends
// return nil; a failed connect returns ErrConnectionFailed with the
// session's reason attached.
func runClientLoop(cli *session.Client, cfg session.Config, flag *StopFlag, log zerolog.Logger) (Report, error) {
	var (
		report Report
		source probeSource
	)
	defer report.log(log)

	for {
		if flag.Stopped() {
			log.Info().Msg("stopping_on_request")
			return report, cli.Disconnect()
		}

		if cli.Connected() {
			if batch, err := source.batch(cfg); err != nil {
				log.Warn().Err(err).Msg("batch_build_failed")
			} else if err := cli.QueuePayload(batch); err != nil {
				log.Warn().Err(err).Msg("payload_queue_refused")
			} else {
				report.BatchesSent++
			}
		}
		if err := cli.SendPackets(); err != nil {
			_ = cli.Disconnect()
			return report, err
		}

		cli.ReceivePackets()
		for data := cli.NextPayload(); data != nil; data = cli.NextPayload() {
			report.absorb(log, cfg, data)
		}

		if cli.Disconnected() {
			log.Info().Msg("session_ended")
			return report, cli.Disconnect()
		}

		cli.AdvanceTime(cfg.Timestep)

		if cli.ConnectionFailed() {
			reason := cli.FailureReason()
			_ = cli.Disconnect()
			return report, fmt.Errorf("%w: %s", ErrConnectionFailed, reason)
		}

		time.Sleep(cfg.Timestep)
	}
}
