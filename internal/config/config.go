package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "LOOPCAP"

const (
	KeyPollInterval   = "poll_interval"
	KeyBufferDuration = "buffer_duration"
	KeyStatsInterval  = "stats_interval"
	KeyControlAddr    = "control_addr"
	KeyLogFile        = "log_file"
)

type Config struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BufferDuration time.Duration `mapstructure:"buffer_duration"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
	ControlAddr    string        `mapstructure:"control_addr"`
	LogFile        string        `mapstructure:"log_file"`
}

// Error reports a missing or invalid argument or configuration value.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var ErrOutputRequired = errors.New("output path is required")

func Default() Config {
	return Config{
		PollInterval:   10 * time.Millisecond,
		BufferDuration: time.Second,
	}
}

// New returns a viper instance carrying the defaults and the LOOPCAP_
// environment overrides.
func New() *viper.Viper {
	v := viper.New()
	def := Default()
	v.SetDefault(KeyPollInterval, def.PollInterval)
	v.SetDefault(KeyBufferDuration, def.BufferDuration)
	v.SetDefault(KeyStatsInterval, def.StatsInterval)
	v.SetDefault(KeyControlAddr, def.ControlAddr)
	v.SetDefault(KeyLogFile, def.LogFile)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// BindFlags binds the command line flags that override configuration keys.
// Flags that are not defined on fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	bindings := map[string]string{
		KeyPollInterval:   "poll-interval",
		KeyBufferDuration: "buffer",
		KeyStatsInterval:  "stats-interval",
		KeyControlAddr:    "control",
		KeyLogFile:        "log-file",
	}
	for key, name := range bindings {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads cfgFile when given and decodes the merged configuration.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &Error{Key: "file", Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &Error{Err: fmt.Errorf("decode config: %w", err)}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return &Error{Key: KeyPollInterval, Err: errors.New("must be positive")}
	}
	if c.BufferDuration <= 0 {
		return &Error{Key: KeyBufferDuration, Err: errors.New("must be positive")}
	}
	if c.PollInterval >= c.BufferDuration/2 {
		return &Error{Key: KeyPollInterval, Err: fmt.Errorf("%s must be below half of buffer_duration %s", c.PollInterval, c.BufferDuration)}
	}
	if c.StatsInterval < 0 {
		return &Error{Key: KeyStatsInterval, Err: errors.New("must not be negative")}
	}
	return nil
}
