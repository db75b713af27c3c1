package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Environment variables read once at start.
const (
	EnvBaseURL = "BASE_URL"
	EnvToken   = "TOKEN"
)

const (
	keyBaseURL = "base_url"
	keyToken   = "token"
)

// NewEnv returns a viper instance that resolves the base URL and token from
// the given flags, then the environment. Flags that were not set on the
// command line fall through to the environment.
func NewEnv(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	if err := v.BindEnv(keyBaseURL, EnvBaseURL); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", EnvBaseURL, err)
	}
	if err := v.BindEnv(keyToken, EnvToken); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", EnvToken, err)
	}

	if flags != nil {
		if f := flags.Lookup("base-url"); f != nil {
			if err := v.BindPFlag(keyBaseURL, f); err != nil {
				return nil, fmt.Errorf("failed to bind --base-url: %w", err)
			}
		}
		if f := flags.Lookup("token"); f != nil {
			if err := v.BindPFlag(keyToken, f); err != nil {
				return nil, fmt.Errorf("failed to bind --token: %w", err)
			}
		}
	}

	return v, nil
}

// ApplyEnv overlays the resolved base URL and token on the scenario.
// Empty values leave the file's settings untouched.
func ApplyEnv(cfg *ScenarioConfig, v *viper.Viper) {
	if s := v.GetString(keyBaseURL); s != "" {
		cfg.Settings.BaseURL = s
	}
	if s := v.GetString(keyToken); s != "" {
		cfg.Settings.Token = s
	}
}
