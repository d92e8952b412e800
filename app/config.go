package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. LRTVAULT_API_PORT
const EnvPrefix = "LRTVAULT"

// AdapterConfig describes one simulated restaking protocol mounted by the node
type AdapterConfig struct {
	Name            string `mapstructure:"name"`
	Granularity     int64  `mapstructure:"granularity"`
	UnbondingEpochs uint64 `mapstructure:"unbonding_epochs"`
}

// APIConfig configures the HTTP server
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// APIKey guards operator, oracle and admin routes; empty disables the check
	APIKey string `mapstructure:"api_key"`
	// RateLimit is requests per second per client, burst is twice that
	RateLimit int `mapstructure:"rate_limit"`
}

// Config is the node configuration read from <home>/config/app.toml
type Config struct {
	Home       string `mapstructure:"-"`
	ChainID    string `mapstructure:"chain_id"`
	LogLevel   string `mapstructure:"log_level"`
	LogFormat  string `mapstructure:"log_format"`
	DBBackend  string `mapstructure:"db_backend"`
	JournalCap int    `mapstructure:"journal_capacity"`

	Authority string `mapstructure:"authority"`
	Operator  string `mapstructure:"operator"`
	Oracle    string `mapstructure:"oracle"`

	Adapters []AdapterConfig `mapstructure:"adapters"`
	API      APIConfig       `mapstructure:"api"`
}

// DefaultConfig returns the configuration of a fresh single node
func DefaultConfig(home string) Config {
	return Config{
		Home:       home,
		ChainID:    "lrtvault-1",
		LogLevel:   "info",
		LogFormat:  "plain",
		DBBackend:  "goleveldb",
		JournalCap: 10_000,
		Adapters: []AdapterConfig{
			{Name: "simulated", Granularity: 1, UnbondingEpochs: 7},
		},
		API: APIConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit:    100,
		},
	}
}

// Validate checks addresses and adapter definitions
func (c Config) Validate() error {
	for field, addr := range map[string]string{"authority": c.Authority, "operator": c.Operator, "oracle": c.Oracle} {
		if addr == "" {
			continue
		}
		if _, err := sdk.AccAddressFromBech32(addr); err != nil {
			return fmt.Errorf("invalid %s address: %w", field, err)
		}
	}
	seen := make(map[string]bool)
	for _, a := range c.Adapters {
		if a.Name == "" || seen[a.Name] {
			return fmt.Errorf("adapter names must be unique and non-empty: %q", a.Name)
		}
		if a.Granularity <= 0 {
			return fmt.Errorf("adapter %s granularity must be positive", a.Name)
		}
		seen[a.Name] = true
	}
	if c.JournalCap <= 0 {
		return fmt.Errorf("journal capacity must be positive")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", c.API.Port)
	}
	return nil
}

// ConfigPath returns the app.toml location under home
func ConfigPath(home string) string {
	return filepath.Join(home, "config", "app.toml")
}

// DataDir returns the database directory under home
func DataDir(home string) string {
	return filepath.Join(home, "data")
}

// GenesisPath returns the genesis file location under home
func GenesisPath(home string) string {
	return filepath.Join(home, "config", "genesis.json")
}

// LoadConfig layers defaults, app.toml and LRTVAULT_* environment variables.
// v may carry bound command line flags.
func LoadConfig(v *viper.Viper, home string) (Config, error) {
	cfg := DefaultConfig(home)
	setDefaults(v, cfg)

	v.SetConfigFile(ConfigPath(home))
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("failed to read %s: %w", ConfigPath(home), err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Home = home
	return cfg, cfg.Validate()
}

// WriteConfig writes cfg to <home>/config/app.toml
func WriteConfig(cfg Config) error {
	v := viper.New()
	setDefaults(v, cfg)
	adapters := make([]map[string]interface{}, 0, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		adapters = append(adapters, map[string]interface{}{
			"name":             a.Name,
			"granularity":      a.Granularity,
			"unbonding_epochs": a.UnbondingEpochs,
		})
	}
	v.Set("adapters", adapters)

	if err := os.MkdirAll(filepath.Dir(ConfigPath(cfg.Home)), 0o755); err != nil {
		return err
	}
	return v.WriteConfigAs(ConfigPath(cfg.Home))
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("chain_id", cfg.ChainID)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("db_backend", cfg.DBBackend)
	v.SetDefault("journal_capacity", cfg.JournalCap)
	v.SetDefault("authority", cfg.Authority)
	v.SetDefault("operator", cfg.Operator)
	v.SetDefault("oracle", cfg.Oracle)
	v.SetDefault("api.host", cfg.API.Host)
	v.SetDefault("api.port", cfg.API.Port)
	v.SetDefault("api.read_timeout", cfg.API.ReadTimeout)
	v.SetDefault("api.write_timeout", cfg.API.WriteTimeout)
	v.SetDefault("api.api_key", cfg.API.APIKey)
	v.SetDefault("api.rate_limit", cfg.API.RateLimit)
}

func (a AdapterConfig) granularity() math.Int {
	return math.NewInt(a.Granularity)
}
