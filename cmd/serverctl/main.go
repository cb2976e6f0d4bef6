// serverctl hosts a standalone game server that echoes every payload
// batch back to its sender. It admits insecure-key clients and
// matchd-token clients.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/stepnet-protocol/stepnet/internal/config"
	"github.com/stepnet-protocol/stepnet/internal/driver"
	"github.com/stepnet-protocol/stepnet/internal/observability"
	"github.com/stepnet-protocol/stepnet/internal/session"
)

func main() {
	configPath := flag.String("config", "cmd/serverctl/config.toml", "path to server config")
	bind := flag.String("bind", "", "override the bind address")
	flag.Parse()

	if err := run(*configPath, *bind); err != nil {
		fmt.Fprintf(os.Stderr, "serverctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, bind string) error {
	observability.InitLogger("serverctl")

	cfg, err := config.LoadServerConfigIfPresent(configPath)
	if err != nil {
		return err
	}
	if bind != "" {
		cfg.BindAddr = bind
	}

	rt, err := session.NewRuntime(log.Logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	var stop driver.StopFlag
	release := driver.WatchSignals(&stop, log.Logger)
	defer release()

	_, err = driver.RunServer(rt, driver.ServerOptions{
		Session:     cfg.Session,
		BindAddr:    cfg.BindAddr,
		InsecureKey: cfg.InsecureKey,
		TokenKey:    cfg.TokenKey,
	}, &stop)
	return err
}
