package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		return clientTemplate, nil
	case "server":
		return serverTemplate, nil
	case "matchd":
		return matchdTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clientTemplate = `server_addr = "127.0.0.1:40000"
matcher_url = "http://127.0.0.1:8090"
local_tokens = false
insecure_key = "` + devInsecureKeyHex + `"
token_key = "` + devTokenKeyHex + `"

[session]
connect_timeout = "5s"
idle_timeout = "10s"
timestep = "16.666666ms"
`

const serverTemplate = `bind_addr = "0.0.0.0:40000"
insecure_key = "` + devInsecureKeyHex + `"
token_key = "` + devTokenKeyHex + `"

[session]
connect_timeout = "5s"
idle_timeout = "10s"
max_clients = 16
timestep = "16.666666ms"
`

const matchdTemplate = `addr = ":8090"
server_addr = "127.0.0.1:40000"
token_key = "` + devTokenKeyHex + `"
token_ttl = "45s"
grant_timeout = "10s"
cors_origins = ["http://localhost:3000"]
`
