// ABOUTME: Process-level config for the demo binary: log level and which scenario to run, loaded from a small TOML file.
// ABOUTME: This is separate from internal/config's subsystem YAML flags; the demo does not load that YAML file.

package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// demoConfig is the demo binary's own process settings.
type demoConfig struct {
	Logging  loggingConfig  `toml:"logging"`
	Scenario scenarioConfig `toml:"scenario"`
}

type loggingConfig struct {
	Level string `toml:"level"`
}

type scenarioConfig struct {
	// Name selects which demo scenario to run (see cmd/chanstore-demo/scenarios.go), or "all".
	Name string `toml:"name"`
}

func defaultDemoConfig() demoConfig {
	return demoConfig{
		Logging:  loggingConfig{Level: "info"},
		Scenario: scenarioConfig{Name: "all"},
	}
}

func loadDemoConfig(path string) (demoConfig, error) {
	cfg := defaultDemoConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return demoConfig{}, fmt.Errorf("reading demo config: %w", err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return demoConfig{}, fmt.Errorf("parsing demo config: %w", err)
	}
	return cfg, nil
}
