package main

import (
	"flag"
	"log"
	"path/filepath"
	"strings"

	"github.com/danmuck/brokerbot/internal/config"
)

const defaultConfigPath = "cmd/brokerbot/config.toml"

func main() {
	format := flag.String("format", "", "template format: toml|yaml (default: from -output extension)")
	output := flag.String("output", defaultConfigPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultConfigPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		svc, err := cfg.ToServiceConfig()
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated config at %s endpoint=%s burst=%d max_cycles=%d", *input, svc.Endpoint, svc.Driver.BurstSize, svc.Driver.MaxCycles)
		return
	}

	kind := strings.TrimSpace(*format)
	if kind == "" {
		kind = filepath.Ext(*output)
	}
	if err := config.WriteTemplate(*output, kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote config template to %s", *output)
}
