// clientctl connects to a game server with the shared insecure key and
// pumps probe traffic until interrupted.
//
// Usage: clientctl [server-address]
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

const defaultConfigPath = "cmd/clientctl/config.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "clientctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	observability.InitLogger("clientctl")
	if len(args) > 1 {
		return fmt.Errorf("usage: clientctl [server-address]")
	}

	cfg, err := config.LoadClientConfigIfPresent(defaultConfigPath)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.ServerAddr = args[0]
	}
	if _, err := session.ParseAddr(cfg.ServerAddr, session.DefaultPort); err != nil {
		return err
	}

	rt, err := session.NewRuntime(log.Logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	var stop driver.StopFlag
	release := driver.WatchSignals(&stop, log.Logger)
	defer release()

	_, err = driver.RunInsecure(rt, driver.InsecureOptions{
		Session:    cfg.Session,
		Key:        cfg.InsecureKey,
		ServerAddr: cfg.ServerAddr,
	}, &stop)
	return err
}
