package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// CLIFlags holds command-line overrides. Nil fields were not given.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	Store      *string
}

// RegisterFlags binds the override flags to fs. Read them back with
// FlagsFrom after parsing.
func RegisterFlags(fs *pflag.FlagSet) {
	b := &flagBinding{fs: fs}
	b.str("config", "c", DefaultConfigFile, "path to YAML config file")
	b.str("port", "p", "", "HTTP listen port")
	b.str("log-level", "", "", "log level (debug, info, warn, error)")
	b.str("dsn", "", "", "PostgreSQL connection string")
	b.str("nats-url", "", "", "NATS server URL")
	b.str("store", "", "", "event store driver (memory, postgres)")
}

// ParseFlags parses args into CLIFlags.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := pflag.NewFlagSet("eventweb", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, fmt.Errorf("parse flags: %w", err)
	}
	return FlagsFrom(fs), nil
}

// FlagsFrom collects the flags that were explicitly set on a parsed fs.
func FlagsFrom(fs *pflag.FlagSet) CLIFlags {
	changed := func(name string) *string {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			return nil
		}
		v := f.Value.String()
		return &v
	}
	return CLIFlags{
		ConfigPath: changed("config"),
		Port:       changed("port"),
		LogLevel:   changed("log-level"),
		DSN:        changed("dsn"),
		NatsURL:    changed("nats-url"),
		Store:      changed("store"),
	}
}

// LoadWithCLI loads configuration with the hierarchy
// defaults < YAML < ENV < CLI. It also returns the YAML path used.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, path, fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, path, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

// applyCLI overlays set flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&cfg.Server.Port, flags.Port)
	apply(&cfg.Logging.Level, flags.LogLevel)
	apply(&cfg.Postgres.DSN, flags.DSN)
	apply(&cfg.NATS.URL, flags.NatsURL)
	apply(&cfg.Store.Driver, flags.Store)
}

type flagBinding struct {
	fs *pflag.FlagSet
}

func (b *flagBinding) str(name, short, value, usage string) {
	if b.fs.Lookup(name) != nil {
		return
	}
	b.fs.StringP(name, short, value, usage)
}
