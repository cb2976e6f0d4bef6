// matchd issues signed, time-limited connect tokens over HTTP.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/stepnet-protocol/stepnet/internal/config"
	"github.com/stepnet-protocol/stepnet/internal/match"
	"github.com/stepnet-protocol/stepnet/internal/observability"
)

func main() {
	configPath := flag.String("config", "cmd/matchd/config.toml", "path to matchd config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "matchd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	observability.InitLogger("matchd")

	cfg, err := config.LoadMatchdConfigIfPresent(configPath)
	if err != nil {
		return err
	}
	svc, err := match.NewService(cfg)
	if err != nil {
		return err
	}
	return svc.Run()
}
