package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/brokerbot/internal/bot"
	"github.com/danmuck/brokerbot/internal/testutil/testlog"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTemplatesLoadToDefaults(t *testing.T) {
	testlog.Start(t)
	def := bot.DefaultServiceConfig()
	for _, format := range []string{"toml", "yaml"} {
		tmpl, err := Template(format)
		if err != nil {
			t.Fatalf("template %s: %v", format, err)
		}
		cfg, err := Load(writeFile(t, "config."+format, tmpl))
		if err != nil {
			t.Fatalf("load %s template: %v", format, err)
		}
		svc, err := cfg.ToServiceConfig()
		if err != nil {
			t.Fatalf("convert %s: %v", format, err)
		}
		if svc.Endpoint != def.Endpoint || svc.Timezone != def.Timezone {
			t.Fatalf("%s: unexpected endpoint/timezone: %q %q", format, svc.Endpoint, svc.Timezone)
		}
		if svc.Driver != def.Driver {
			t.Fatalf("%s: driver config drifted from defaults: %+v", format, svc.Driver)
		}
		if svc.Transport.ConnectTimeout != 5*time.Second || svc.Transport.ReadTimeout != 0 || svc.Transport.MaxConnectAttempts != 5 {
			t.Fatalf("%s: unexpected transport: %+v", format, svc.Transport)
		}
		if svc.AdminAddr != "127.0.0.1:7070" || len(svc.CORSOrigins) != 1 {
			t.Fatalf("%s: unexpected admin: %q %v", format, svc.AdminAddr, svc.CORSOrigins)
		}
	}
}

func TestLoadJSONOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "bot.json", `{
  "endpoint": "tcp://broker:5555",
  "probe_endpoint": "tcp://proxy:5558",
  "seed": 42,
  "session": {"username": "bot-fixed1", "burst_size": 3, "publish_delay_max": "2s", "max_cycles": 4},
  "transport": {"read_timeout": "10s"}
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	svc, err := cfg.ToServiceConfig()
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if svc.Endpoint != "tcp://broker:5555" || svc.ProbeEndpoint != "tcp://proxy:5558" || svc.Seed != 42 {
		t.Fatalf("unexpected top-level: %+v", svc)
	}
	if svc.Driver.Username != "bot-fixed1" || svc.Driver.BurstSize != 3 || svc.Driver.MaxCycles != 4 {
		t.Fatalf("unexpected driver: %+v", svc.Driver)
	}
	if svc.Driver.PublishDelayMax != 2*time.Second || svc.Driver.PublishDelayMin != 300*time.Millisecond {
		t.Fatalf("unexpected publish delays: %+v", svc.Driver)
	}
	if svc.Transport.ReadTimeout != 10*time.Second {
		t.Fatalf("unexpected read timeout: %v", svc.Transport.ReadTimeout)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"bad_duration.toml": "[session]\npublish_delay_min = \"soon\"\n",
		"negative.yaml":     "session:\n  burst_size: -2\n",
		"inverted.toml":     "[session]\nidle_delay_min = \"2s\"\nidle_delay_max = \"1s\"\n",
		"timezone.json":     `{"timezone": "Mars/Olympus"}`,
	}
	for name, content := range cases {
		if _, err := Load(writeFile(t, name, content)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestLoadFileUnsupportedFormat(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadFile(writeFile(t, "bot.ini", "endpoint=x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "bot.toml")
	if err := WriteTemplate(path, "toml", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteTemplate(path, "toml", false); err == nil {
		t.Fatalf("expected refusal without overwrite")
	}
	if err := WriteTemplate(path, "yaml", true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := Template("ini"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestMaxConnectAttemptsZeroInEveryFormat(t *testing.T) {
	testlog.Start(t)
	def := bot.DefaultServiceConfig().Transport.MaxConnectAttempts
	cases := []struct {
		name    string
		content string
		want    int
	}{
		{"zero.toml", "[transport]\nmax_connect_attempts = 0\n", 0},
		{"zero.yaml", "transport:\n  max_connect_attempts: 0\n", 0},
		{"zero.json", `{"transport": {"max_connect_attempts": 0}}`, 0},
		{"three.yaml", "transport:\n  max_connect_attempts: 3\n", 3},
		{"unset.json", `{"transport": {"read_timeout": "1s"}}`, def},
		{"unset.yaml", "endpoint: tcp://broker:5555\n", def},
	}
	for _, tc := range cases {
		cfg, err := Load(writeFile(t, tc.name, tc.content))
		if err != nil {
			t.Fatalf("%s: load: %v", tc.name, err)
		}
		svc, err := cfg.ToServiceConfig()
		if err != nil {
			t.Fatalf("%s: convert: %v", tc.name, err)
		}
		if svc.Transport.MaxConnectAttempts != tc.want {
			t.Fatalf("%s: max_connect_attempts=%d want %d", tc.name, svc.Transport.MaxConnectAttempts, tc.want)
		}
	}
	if _, err := Load(writeFile(t, "neg.json", `{"transport": {"max_connect_attempts": -1}}`)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for negative attempts, got %v", err)
	}
}
