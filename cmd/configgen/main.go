package main

import (
	"flag"
	"log"

	"github.com/stepnet-protocol/stepnet/internal/config"
)

func defaultPath(kind string) (string, bool) {
	switch kind {
	case "client":
		return "cmd/clientctl/config.toml", true
	case "server":
		return "cmd/serverctl/config.toml", true
	case "matchd":
		return "cmd/matchd/config.toml", true
	default:
		return "", false
	}
}

func main() {
	kind := flag.String("kind", "client", "config kind: client|server|matchd")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			var ok bool
			if path, ok = defaultPath(*kind); !ok {
				log.Fatalf("unknown kind: %s", *kind)
			}
		}

		var err error
		switch *kind {
		case "client":
			_, err = config.LoadClientConfig(path)
		case "server":
			_, err = config.LoadServerConfig(path)
		case "matchd":
			_, err = config.LoadMatchdConfig(path)
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		var ok bool
		if target, ok = defaultPath(*kind); !ok {
			log.Fatalf("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
