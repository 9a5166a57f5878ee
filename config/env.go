package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g. ECOCHAMBER_SEED.
const EnvPrefix = "ECOCHAMBER_"

// applyEnv overwrites fields tagged with `env` from the environment.
// Unset variables leave the YAML value in place.
func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
