// Package config fills env-tagged structs from the process environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load fills cfg from the environment according to its `env` and
// `envDefault` tags.
func Load(cfg any) error {
	return parse(cfg, env.Options{}, "parse config")
}

// LoadWithPrefix is Load with prefix prepended to every variable name. The
// listings service and the browser share an environment this way.
func LoadWithPrefix(cfg any, prefix string) error {
	return parse(cfg, env.Options{Prefix: prefix}, fmt.Sprintf("parse config with prefix %q", prefix))
}

func parse(cfg any, opts env.Options, what string) error {
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
