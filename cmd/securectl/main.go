// securectl asks the match-maker for a connect token and joins the
// server it names. A failed match aborts the run before any connect
// attempt.
//
// Usage: securectl [server-address]
//
// The address argument only reaches locally minted tokens
// (local_tokens = true); tokens issued by matchd already carry their
// server placement.
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

const defaultConfigPath = "cmd/securectl/config.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "securectl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	observability.InitLogger("securectl")
	if len(args) > 1 {
		return fmt.Errorf("usage: securectl [server-address]")
	}

	cfg, err := config.LoadClientConfigIfPresent(defaultConfigPath)
	if err != nil {
		return err
	}
	override := ""
	if len(args) == 1 {
		override = args[0]
		if _, err := session.ParseAddr(override, session.DefaultPort); err != nil {
			return err
		}
	}

	rt, err := session.NewRuntime(log.Logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	var stop driver.StopFlag
	release := driver.WatchSignals(&stop, log.Logger)
	defer release()

	_, err = driver.RunSecure(rt, driver.SecureOptions{
		Session:            cfg.Session,
		Matcher:            cfg.Matcher(),
		LoopbackToken:      cfg.LocalTokens,
		ServerAddrOverride: override,
	}, &stop)
	return err
}
