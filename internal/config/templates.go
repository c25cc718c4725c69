package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "node", "":
		return nodeTemplate, nil
	case "client":
		return clientTemplate, nil
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

const nodeTemplate = `key_file = "lnpd.key"
security_mode = "development"
admin_addr = "127.0.0.1:9736"
admin_cors_origins = ["http://localhost:3000"]
# admin_token = "change-me"

# lnp:// and lnpws:// listen urls take this node's id from key_file
listen = [
  "lnp://0.0.0.0:9735",
  "lnpu:///tmp/lnpd.sock",
]
peers = []

[session]
connect_timeout = "5s"
handshake_timeout = "5s"
read_timeout = "0s"
write_timeout = "15s"
max_connect_attempts = 5

[session.backoff]
initial_delay = "250ms"
multiplier = 2.0
max_delay = "5s"
jitter = true
`

const clientTemplate = `key_file = "lnp-client.key"
security_mode = "production"
admin_addr = ""
listen = []
peers = []

[session]
connect_timeout = "5s"
handshake_timeout = "5s"
max_connect_attempts = 3
`
