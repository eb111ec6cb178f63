// Package params holds the operator-facing configuration for the state
// engine: where the pebble store lives and consensus-level knobs carried
// for an embedding node. Loading mirrors the teacher's
// params/config.go (env-file based) and, for operators who prefer a
// file, the pack's 0xtitan6-polymarket-mm/internal/config/config.go
// viper pattern — both produce the same Config struct.
package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// StoreConfig points at the pebble database directory.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ChainConfig carries consensus-level knobs for an embedding node.
// Neither field is read by validate or connect: CoinbaseMaturity is not
// enforced by this engine (block production is an external
// collaborator), and LmsrPrecision is not passed to lmsr.NewContext,
// which always uses lmsr.Precision.
type ChainConfig struct {
	CoinbaseMaturity uint32 `mapstructure:"coinbase_maturity"`
	LmsrPrecision    uint32 `mapstructure:"lmsr_precision"`
}

// Config is the top-level configuration, loaded either from the
// environment or from a YAML file.
type Config struct {
	Store StoreConfig `mapstructure:"store"`
	Chain ChainConfig `mapstructure:"chain"`
}

// Default returns the devnet-friendly configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{Path: "./data/state"},
		Chain: ChainConfig{
			CoinbaseMaturity: 100,
			LmsrPrecision:    40,
		},
	}
}

// LoadFromEnv loads configuration from an optional .env file followed
// by environment variables, the same precedence the teacher's
// params.LoadFromEnv uses (ENV > .env file > defaults).
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if path := os.Getenv("STATE_STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if maturity := os.Getenv("STATE_COINBASE_MATURITY"); maturity != "" {
		if n, err := strconv.Atoi(maturity); err == nil {
			cfg.Chain.CoinbaseMaturity = uint32(n)
		}
	}
	if precision := os.Getenv("STATE_LMSR_PRECISION"); precision != "" {
		if n, err := strconv.Atoi(precision); err == nil {
			cfg.Chain.LmsrPrecision = uint32(n)
		}
	}

	return cfg
}

// LoadFromFile loads configuration from a YAML (or any viper-supported)
// config file, for operators who prefer a file to flat env vars.
// mapstructure tags mirror LoadFromEnv's fields one-to-one.
func LoadFromFile(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("STATE")
	v.AutomaticEnv()

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
