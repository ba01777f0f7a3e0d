package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a commented starter config in the given format.
func Template(format string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "", "toml":
		return tomlTemplate, nil
	case "yaml", "yml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func WriteTemplate(path, format string, overwrite bool) error {
	template, err := Template(format)
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

const tomlTemplate = `# broker REQ endpoint; BROKER_ENDPOINT overrides it
endpoint = "tcp://localhost:5555"
# pub-sub proxy SUB side, empty disables the delivery probe
probe_endpoint = ""
# admin HTTP surface, empty disables it
admin_addr = "127.0.0.1:7070"
# bearer token for /status, empty leaves it open
admin_token = ""
cors_origins = ["http://localhost:3000"]
timezone = "America/Sao_Paulo"
# 0 picks a random seed
seed = 0

[session]
# empty picks bot-xxxxxx
username = ""
burst_size = 10
message_length = 40
publish_delay_min = "300ms"
publish_delay_max = "1s"
idle_delay_min = "500ms"
idle_delay_max = "1.5s"
# 0 runs until interrupted
max_cycles = 0

[transport]
connect_timeout = "5s"
# 0 waits forever for a reply
read_timeout = "0s"
write_timeout = "15s"
poll_interval = "100ms"
max_connect_attempts = 5
`

const yamlTemplate = `endpoint: tcp://localhost:5555
probe_endpoint: ""
admin_addr: 127.0.0.1:7070
admin_token: ""
cors_origins:
  - http://localhost:3000
timezone: America/Sao_Paulo
seed: 0
session:
  username: ""
  burst_size: 10
  message_length: 40
  publish_delay_min: 300ms
  publish_delay_max: 1s
  idle_delay_min: 500ms
  idle_delay_max: 1.5s
  max_cycles: 0
transport:
  connect_timeout: 5s
  read_timeout: 0s
  write_timeout: 15s
  poll_interval: 100ms
  max_connect_attempts: 5
`
