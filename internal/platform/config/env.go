// Package config reads isoviz process configuration from ISOVIZ_* environment
// variables. Commands overlay flags on top of the parsed values so flags win
// over the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target's env-tagged fields, applying envDefault values for
// unset variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
