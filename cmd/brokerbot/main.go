package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/brokerbot/internal/bot"
	"github.com/danmuck/brokerbot/internal/logging"
)

type overrides struct {
	endpoint string
	user     string
	cycles   int
	admin    string
	probe    string
	seed     uint64
}

func main() {
	var (
		path string
		o    overrides
	)
	flag.StringVar(&path, "config", "", "config file (.toml, .yaml, .json)")
	flag.StringVar(&o.endpoint, "endpoint", "", "broker REQ endpoint, e.g. tcp://localhost:5555")
	flag.StringVar(&o.user, "user", "", "session username (default: random bot-xxxxxx)")
	flag.IntVar(&o.cycles, "cycles", -1, "publish bursts before exiting; 0 runs until interrupted")
	flag.StringVar(&o.admin, "admin", "", "admin HTTP listen address")
	flag.StringVar(&o.probe, "probe", "", "pub-sub proxy endpoint for the delivery probe")
	flag.Uint64Var(&o.seed, "seed", 0, "workload seed (0 = random)")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := loadServiceConfig(strings.TrimSpace(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "brokerbot: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(&cfg, os.Getenv, o)

	svc := bot.NewServiceWithConfig(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "brokerbot: %v\n", err)
		os.Exit(1)
	}
}
