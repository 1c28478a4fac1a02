// ABOUTME: Loads the data-store collection's runtime flags from a YAML file.
// ABOUTME: Only the two real runtime knobs are here; everything else about the subsystem is wired at construction time, not config-driven.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries the collection's configuration flags.
type Config struct {
	GC GCConfig `yaml:"gc"`
}

// GCConfig holds the garbage-collection knobs the collection reads.
type GCConfig struct {
	// DetectOutboundRoutesViaDDSKey, when true, delegates outbound-reference
	// detection to the store itself instead of the collection's built-in
	// payload walk. False or unset keeps in-subsystem detection.
	DetectOutboundRoutesViaDDSKey bool `yaml:"detect_outbound_routes_via_dds_key"`

	// SweepEnabled is the sweep toggle. No code in this module reads it:
	// Collection.DeleteSweepReady deletes whenever it is called.
	SweepEnabled bool `yaml:"sweep_enabled"`

	// TombstoneGracePeriodDays is carried for the container runtime, which
	// owns the grace-period clock; no code in this module reads it.
	TombstoneGracePeriodDays int `yaml:"tombstone_grace_period_days"`
}

// Default returns the collection's default configuration: in-subsystem
// route detection, sweep disabled.
func Default() Config {
	return Config{
		GC: GCConfig{
			DetectOutboundRoutesViaDDSKey: false,
			SweepEnabled:                  false,
			TombstoneGracePeriodDays:      7,
		},
	}
}

// Load reads and parses a YAML config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
