// loopctl runs a client and a server in one process, wired over a
// loopback bridge instead of a socket, and pumps probe traffic until
// interrupted.
//
// Usage: loopctl [server-address]
//
// The address argument is accepted for parity with the other drivers
// and validated, but loopback mode never opens a socket, so it has no
// further effect.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/stepnet-protocol/stepnet/internal/config"
	"github.com/stepnet-protocol/stepnet/internal/driver"
	"github.com/stepnet-protocol/stepnet/internal/observability"
	"github.com/stepnet-protocol/stepnet/internal/session"
)

const defaultConfigPath = "cmd/loopctl/config.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "loopctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	observability.InitLogger("loopctl")
	if len(args) > 1 {
		return fmt.Errorf("usage: loopctl [server-address]")
	}

	cfg, err := config.LoadClientConfigIfPresent(defaultConfigPath)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		if _, err := session.ParseAddr(args[0], session.DefaultPort); err != nil {
			return err
		}
		log.Info().Str("addr", args[0]).Msg("address_ignored_in_loopback_mode")
	}

	rt, err := session.NewRuntime(log.Logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	var stop driver.StopFlag
	release := driver.WatchSignals(&stop, log.Logger)
	defer release()

	_, err = driver.RunLoopback(rt, driver.LoopbackOptions{
		Session: cfg.Session,
	}, &stop)
	return err
}
