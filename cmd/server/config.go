package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML form of the server configuration.
// Command-line flags that were set explicitly take precedence over the file.
type fileConfig struct {
	HTTPAddr      string `yaml:"http_addr"`
	ProgramID     string `yaml:"program_id"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`

	Solana struct {
		RPCEndpoint string `yaml:"rpc_endpoint"`
		WSEndpoint  string `yaml:"ws_endpoint"`
	} `yaml:"solana"`

	// Watch lists tickers reconciled against on-chain custody.
	Watch    []string `yaml:"watch"`
	WatchGap string   `yaml:"watch_gap"`

	UseMemory   *bool `yaml:"use_memory"`
	LocalAssets *bool `yaml:"local_assets"`
}

// loadConfigFile reads a YAML configuration file.
func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &fc, nil
}

// apply copies file values into cfg for every flag not named in explicit.
func (fc *fileConfig) apply(cfg *config, explicit map[string]bool) error {
	setString := func(flagName, value string, dst *string) {
		if value != "" && !explicit[flagName] {
			*dst = value
		}
	}
	setString("http-addr", fc.HTTPAddr, &cfg.httpAddr)
	setString("program-id", fc.ProgramID, &cfg.programID)
	setString("postgres-dsn", fc.PostgresDSN, &cfg.postgresDSN)
	setString("clickhouse-dsn", fc.ClickhouseDSN, &cfg.clickhouseDSN)
	setString("rpc-endpoint", fc.Solana.RPCEndpoint, &cfg.rpcEndpoint)
	setString("ws-endpoint", fc.Solana.WSEndpoint, &cfg.wsEndpoint)

	if len(fc.Watch) > 0 && !explicit["watch"] {
		cfg.watch = strings.Join(fc.Watch, ",")
	}
	if fc.WatchGap != "" && !explicit["watch-gap"] {
		gap, err := time.ParseDuration(fc.WatchGap)
		if err != nil {
			return fmt.Errorf("watch_gap: %w", err)
		}
		cfg.watchGap = gap
	}
	if fc.UseMemory != nil && !explicit["use-memory"] {
		cfg.useMemory = *fc.UseMemory
	}
	if fc.LocalAssets != nil && !explicit["local-assets"] {
		cfg.localAssets = *fc.LocalAssets
	}
	return nil
}
