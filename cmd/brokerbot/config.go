package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/brokerbot/internal/bot"
	"github.com/danmuck/brokerbot/internal/config"
	"github.com/danmuck/brokerbot/internal/logging"
)

const endpointEnv = "BROKER_ENDPOINT"

// loadServiceConfig reads path onto bot defaults. TOML goes through
// BurntSushi so unknown keys are reported and an explicit empty
// cors_origins can be told apart from an absent one; YAML and JSON use the
// shared loader.
func loadServiceConfig(path string) (bot.ServiceConfig, error) {
	if strings.TrimSpace(path) == "" {
		return bot.DefaultServiceConfig(), nil
	}
	if !strings.EqualFold(filepath.Ext(path), ".toml") {
		raw, err := config.Load(path)
		if err != nil {
			return bot.ServiceConfig{}, err
		}
		return raw.ToServiceConfig()
	}

	var raw config.FileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return bot.ServiceConfig{}, fmt.Errorf("load brokerbot config: %w", err)
	}
	for _, key := range meta.Undecoded() {
		logging.Warnf("brokerbot.config unknown key=%q path=%q", key.String(), path)
	}
	if err := raw.Validate(); err != nil {
		return bot.ServiceConfig{}, err
	}
	cfg, err := raw.ToServiceConfig()
	if err != nil {
		return bot.ServiceConfig{}, err
	}

	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}
	return cfg, nil
}

// applyOverrides layers the environment and then flags over the file config.
func applyOverrides(cfg *bot.ServiceConfig, env func(string) string, o overrides) {
	if v := strings.TrimSpace(env(endpointEnv)); v != "" {
		cfg.Endpoint = v
	}
	if o.endpoint != "" {
		cfg.Endpoint = o.endpoint
	}
	if o.user != "" {
		cfg.Driver.Username = o.user
	}
	if o.cycles >= 0 {
		cfg.Driver.MaxCycles = o.cycles
	}
	if o.admin != "" {
		cfg.AdminAddr = o.admin
	}
	if o.probe != "" {
		cfg.ProbeEndpoint = o.probe
	}
	if o.seed != 0 {
		cfg.Seed = o.seed
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
