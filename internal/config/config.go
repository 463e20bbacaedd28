package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/anhol/ryzenppd/internal/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "/etc/ryzenppd.toml"
	DefaultLogLevel   = "info"

	// Read-back values from the SMU table are in watts while profiles are
	// configured in milliwatts. Only correct for power limits; other limits
	// need an explicit divisor in [ryzenadj.divisors].
	DefaultDivisor = 1000.0
)

// SourceAC and SourceBattery are the two policy keys
const (
	SourceAC      = "ac"
	SourceBattery = "battery"
)

// RyzenAdj holds the limit table layout and drift monitor settings
type RyzenAdj struct {
	Limits   []string           `mapstructure:"limits"`
	Monitor  string             `mapstructure:"monitor"`
	Divisors map[string]float64 `mapstructure:"divisors"`
}

// DYTC holds the platform firmware mode settings. An empty method disables
// platform mode writes entirely.
type DYTC struct {
	Method string            `mapstructure:"method"`
	Modes  map[string]uint32 `mapstructure:"modes"`
}

// Policy selects the profile, platform mode and polling rate for one power source
type Policy struct {
	Profile         string  `mapstructure:"profile"`
	PlatformProfile string  `mapstructure:"platform_profile"`
	UpdateRate      float64 `mapstructure:"update_rate_s"`
}

// Interval returns the polling rate as a duration
func (p Policy) Interval() time.Duration {
	return time.Duration(p.UpdateRate * float64(time.Second))
}

// Config is the validated, immutable daemon configuration
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	Telemetry bool   `mapstructure:"telemetry"`
	Database  string `mapstructure:"database"`

	RyzenAdj RyzenAdj         `mapstructure:"ryzenadj"`
	Profiles map[string][]int `mapstructure:"profiles"`
	DYTC     DYTC             `mapstructure:"dytc"`
	AC       Policy           `mapstructure:"ac"`
	Battery  Policy           `mapstructure:"battery"`
}

// Load reads configuration from flags, the RYZENPPD_CONFIG environment
// variable and the config file, validates it and returns an immutable Config.
func Load() (*Config, error) {
	errFactory := errors.New()

	flags := pflag.NewFlagSet("ryzenppd", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	configPath := flags.StringP("config", "c", "", "configuration file path")
	logLevel := flags.String("log-level", "", "log level (debug, info, warn, error)")
	telemetry := flags.Bool("telemetry", false, "record telemetry snapshots")
	database := flags.String("database", "", "telemetry database path")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	path := DefaultConfigPath
	explicit := false
	if env := os.Getenv("RYZENPPD_CONFIG"); env != "" {
		path = env
		explicit = true
	}
	if *configPath != "" {
		path = *configPath
		explicit = true
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		// A missing file at the stock path falls back to defaults; an
		// explicitly requested file must exist.
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err).
				WithMessage("Failed to read config file")
		}
	}

	// Command line flags override file values
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "log-level":
			v.Set("log_level", *logLevel)
		case "telemetry":
			v.Set("telemetry", *telemetry)
		case "database":
			v.Set("database", *database)
		}
	})

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("telemetry", false)
	v.SetDefault("database", "/var/lib/ryzenppd/telemetry.db")

	v.SetDefault("ryzenadj.monitor", "stapm_limit")

	v.SetDefault("dytc.method", "")
	v.SetDefault("dytc.modes", map[string]uint32{
		"low-power":   0x13b001,
		"balanced":    0x1fb001,
		"performance": 0x12b001,
	})

	v.SetDefault("ac.profile", "balanced")
	v.SetDefault("ac.platform_profile", "balanced")
	v.SetDefault("ac.update_rate_s", 4.0)

	v.SetDefault("battery.profile", "low-power")
	v.SetDefault("battery.platform_profile", "low-power")
	v.SetDefault("battery.update_rate_s", 32.0)
}

// Validate performs the load-time sanity checks. Any violation is fatal at
// startup, never at runtime.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if len(c.RyzenAdj.Limits) == 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "no limits configured")
	}
	if c.MonitorIndex() < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "invalid monitor value: "+c.RyzenAdj.Monitor)
	}
	for name, divisor := range c.RyzenAdj.Divisors {
		if !c.hasLimit(name) {
			return errFactory.WithData(errors.ErrInvalidConfig, "divisor for unknown limit: "+name)
		}
		if divisor <= 0 {
			return errFactory.WithData(errors.ErrInvalidConfig, "non-positive divisor for limit: "+name)
		}
	}

	if len(c.Profiles) == 0 {
		return errFactory.WithMessage(errors.ErrMissingConfig, "missing configuration section: profiles")
	}
	for name, limits := range c.Profiles {
		if len(limits) != len(c.RyzenAdj.Limits) {
			return errFactory.WithData(errors.ErrInvalidConfig, "invalid limit configuration for profile: "+name)
		}
	}

	for _, source := range []string{SourceAC, SourceBattery} {
		policy := c.Policy(source)
		if policy.UpdateRate <= 0 {
			return errFactory.WithData(errors.ErrInvalidConfig, "non-positive update_rate_s for: "+source)
		}
		if _, ok := c.Profiles[policy.Profile]; !ok {
			return errFactory.WithData(errors.ErrInvalidConfig, "undefined power profile: "+policy.Profile)
		}
		if _, ok := c.DYTC.Modes[policy.PlatformProfile]; !ok {
			return errFactory.WithData(errors.ErrInvalidConfig, "undefined platform profile: "+policy.PlatformProfile)
		}
	}

	return nil
}

// Policy returns the policy for the given power source
func (c *Config) Policy(source string) Policy {
	if strings.EqualFold(source, SourceBattery) {
		return c.Battery
	}

	return c.AC
}

// MonitorIndex returns the index of the monitored limit in the limit list,
// or -1 if the monitor is not a configured limit
func (c *Config) MonitorIndex() int {
	for i, name := range c.RyzenAdj.Limits {
		if name == c.RyzenAdj.Monitor {
			return i
		}
	}

	return -1
}

// MonitorDivisor returns the divisor applied to the monitored limit's profile
// value before comparing it against the hardware read-back
func (c *Config) MonitorDivisor() float64 {
	if d, ok := c.RyzenAdj.Divisors[c.RyzenAdj.Monitor]; ok {
		return d
	}

	return DefaultDivisor
}

func (c *Config) hasLimit(name string) bool {
	for _, limit := range c.RyzenAdj.Limits {
		if limit == name {
			return true
		}
	}

	return false
}
