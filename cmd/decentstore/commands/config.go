package commands

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/decentstore/internal/app"
)

// envPrefix marks the variables that configure decentstore.
// DECENTSTORE_STORE__BACKEND sets store.backend.
const envPrefix = "DECENTSTORE_"

// Flags that do not map onto a config key.
const (
	flagConfig = "config"
	flagOption = "option"
)

// optionsKey is where --option pairs land, next to [provider.options] in the file.
const optionsKey = "provider.options."

// source is one configuration layer. Later layers override earlier ones.
type source struct {
	name     string
	provider koanf.Provider
	parser   koanf.Parser
}

// loadConfig merges the TOML file, DECENTSTORE_* variables and the flags the
// user set, then fills defaults and validates the result.
func loadConfig(configPath string, cmd *cli.Command, environ func() []string) (*app.Config, error) {
	var layers []source
	if configPath != "" {
		layers = append(layers, source{"config file", file.Provider(configPath), toml.Parser()})
	}
	layers = append(layers, source{"environment variables", envSource(environ), nil})
	if cmd != nil {
		flags, err := flagValues(cmd)
		if err != nil {
			return nil, err
		}
		layers = append(layers, source{"flags", confmap.Provider(flags, "."), nil})
	}

	k := koanf.New(".")
	for _, l := range layers {
		if err := k.Load(l.provider, l.parser); err != nil {
			return nil, fmt.Errorf("loading %s: %w", l.name, err)
		}
	}

	cfg := &app.Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envSource reads DECENTSTORE_* variables, with "__" separating sections.
func envSource(environ func() []string) koanf.Provider {
	return env.Provider(".", env.Opt{
		Prefix:      envPrefix,
		EnvironFunc: environ,
		TransformFunc: func(name, value string) (string, any) {
			section := strings.TrimPrefix(name, envPrefix)
			return strings.ToLower(strings.ReplaceAll(section, "__", ".")), value
		},
	})
}

// flagValues collects the flags set on cmd or its parents as config keys.
func flagValues(cmd *cli.Command) (map[string]any, error) {
	values := make(map[string]any)
	for _, name := range cmd.FlagNames() {
		if !cmd.IsSet(name) {
			continue
		}

		switch name {
		case flagConfig:
		case flagOption:
			if err := providerOptions(values, cmd.StringSlice(name)); err != nil {
				return nil, err
			}
		default:
			if value := cmd.Value(name); value != nil {
				values[flagKey(name)] = value
			}
		}
	}
	return values, nil
}

// flagKey maps --auth-store--backend to auth_store.backend.
func flagKey(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "--", "."), "-", "_")
}

// providerOptions adds key=value pairs from --option to values.
func providerOptions(values map[string]any, pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid provider option %q, expected key=value", pair)
		}
		values[optionsKey+key] = value
	}
	return nil
}
