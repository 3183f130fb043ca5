package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix     = "LOANLEDGER_"
	envConfigFile = envPrefix + "CONFIG"
	flagConfig    = "config"
)

// ErrUnsupportedSettingType means a setting points to a field type the loader cannot parse.
var ErrUnsupportedSettingType = errors.New("unsupported setting type")

// LookupEnvFunc has the signature of os.LookupEnv.
type LookupEnvFunc func(key string) (string, bool)

// setting binds one configuration field to its flag and environment variable.
// The environment variable is derived from the flag name: database-dsn -> LOANLEDGER_DATABASE_DSN.
type setting struct {
	flag  string
	usage string
	field func(c *Config) any
}

func (s setting) envKey() string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(s.flag, "-", "_"))
}

var settings = []setting{
	{"database-dsn", "primary PostgreSQL DSN", func(c *Config) any { return &c.Database.DSN }},
	{"database-replica-dsn", "optional replica DSN for eventually consistent reads", func(c *Config) any { return &c.Database.ReplicaDSN }},
	{"database-adapter", "database adapter: pgx.pool, sql.db or sqlx.db", func(c *Config) any { return &c.Database.Adapter }},
	{"database-max-open-conns", "maximum open connections per pool", func(c *Config) any { return &c.Database.MaxOpenConns }},
	{"database-min-idle-conns", "minimum idle connections per pool", func(c *Config) any { return &c.Database.MinIdleConns }},
	{"database-max-conn-lifetime", "maximum connection lifetime", func(c *Config) any { return &c.Database.MaxConnLifetime }},
	{"database-max-conn-idle-time", "maximum connection idle time", func(c *Config) any { return &c.Database.MaxConnIdleTime }},
	{"database-connect-timeout", "connect timeout", func(c *Config) any { return &c.Database.ConnectTimeout }},
	{"database-lock-timeout", "row lock timeout inside ledger transactions, 0 waits forever", func(c *Config) any { return &c.Database.LockTimeout }},
	{"database-create-schema", "create tables and indexes on startup", func(c *Config) any { return &c.Database.CreateSchema }},
	{"sweeper-interval", "interval of the scheduled overdue sweep", func(c *Config) any { return &c.Sweeper.Interval }},
	{"sweeper-opportunistic-rate", "listing-triggered sweeps allowed per second", func(c *Config) any { return &c.Sweeper.OpportunisticRate }},
	{"sweeper-opportunistic-burst", "burst of listing-triggered sweeps", func(c *Config) any { return &c.Sweeper.OpportunisticBurst }},
	{"http-addr", "HTTP listen address", func(c *Config) any { return &c.HTTP.Addr }},
	{"http-read-timeout", "HTTP read timeout", func(c *Config) any { return &c.HTTP.ReadTimeout }},
	{"http-write-timeout", "HTTP write timeout", func(c *Config) any { return &c.HTTP.WriteTimeout }},
	{"http-idle-timeout", "HTTP idle timeout", func(c *Config) any { return &c.HTTP.IdleTimeout }},
	{"http-shutdown-timeout", "graceful shutdown timeout", func(c *Config) any { return &c.HTTP.ShutdownTimeout }},
	{"log-level", "log level: debug, info, warn, error", func(c *Config) any { return &c.Log.Level }},
	{"log-format", "log format: json or text", func(c *Config) any { return &c.Log.Format }},
	{"observability-enabled", "enable OpenTelemetry tracing, metrics and log bridging", func(c *Config) any { return &c.Observability.Enabled }},
	{"observability-service-name", "OpenTelemetry service name", func(c *Config) any { return &c.Observability.ServiceName }},
	{"observability-service-version", "OpenTelemetry service version", func(c *Config) any { return &c.Observability.ServiceVersion }},
	{"audit-path", "JSON lines audit log file, empty disables the audit trail", func(c *Config) any { return &c.Audit.Path }},
}

// Load resolves the configuration from defaults, the YAML file, the environment and args.
// It returns pflag.ErrHelp when args ask for the usage text.
func Load(args []string, lookupEnv LookupEnvFunc, usageOutput io.Writer) (*Config, error) {
	cfg := Default()

	flagged := Default()
	flagSet := pflag.NewFlagSet("loanledger", pflag.ContinueOnError)
	flagSet.SetOutput(usageOutput)

	configPath := flagSet.String(flagConfig, "", "path to the YAML config file (env "+envConfigFile+")")
	if err := registerFlags(flagSet, flagged); err != nil {
		return nil, err
	}

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	path := *configPath
	if path == "" {
		path, _ = lookupEnv(envConfigFile)
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvironment(lookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.applyChangedFlags(flagSet, flagged); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile reads a YAML file over the defaults without consulting environment or flags.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile merges the YAML file into c. Unknown keys are rejected.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // the path is operator supplied
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err = decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyEnvironment(lookupEnv LookupEnvFunc) error {
	for _, s := range settings {
		raw, ok := lookupEnv(s.envKey())
		if !ok {
			continue
		}

		if err := parseInto(s.field(c), raw); err != nil {
			return fmt.Errorf("%s: %w", s.envKey(), err)
		}
	}

	return nil
}

func (c *Config) applyChangedFlags(flagSet *pflag.FlagSet, flagged *Config) error {
	for _, s := range settings {
		if !flagSet.Changed(s.flag) {
			continue
		}

		if err := copyField(s.field(c), s.field(flagged)); err != nil {
			return fmt.Errorf("--%s: %w", s.flag, err)
		}
	}

	return nil
}

func registerFlags(flagSet *pflag.FlagSet, target *Config) error {
	for _, s := range settings {
		usage := s.usage + " (env " + s.envKey() + ")"

		switch p := s.field(target).(type) {
		case *string:
			flagSet.StringVar(p, s.flag, *p, usage)
		case *int:
			flagSet.IntVar(p, s.flag, *p, usage)
		case *float64:
			flagSet.Float64Var(p, s.flag, *p, usage)
		case *bool:
			flagSet.BoolVar(p, s.flag, *p, usage)
		case *time.Duration:
			flagSet.DurationVar(p, s.flag, *p, usage)
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedSettingType, s.flag)
		}
	}

	return nil
}

func parseInto(field any, raw string) error {
	switch p := field.(type) {
	case *string:
		*p = raw
	case *int:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*p = v
	case *float64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		*p = v
	case *bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		*p = v
	case *time.Duration:
		v, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*p = v
	default:
		return ErrUnsupportedSettingType
	}

	return nil
}

func copyField(dst, src any) error {
	switch d := dst.(type) {
	case *string:
		*d = *src.(*string)
	case *int:
		*d = *src.(*int)
	case *float64:
		*d = *src.(*float64)
	case *bool:
		*d = *src.(*bool)
	case *time.Duration:
		*d = *src.(*time.Duration)
	default:
		return ErrUnsupportedSettingType
	}

	return nil
}
