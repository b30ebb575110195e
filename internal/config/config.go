// Package config содержит логику чтения конфигурации платёжного моста.
package config

import (
	"errors"
	"flag"
	"fmt"
	"math/big"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
)

// Config содержит параметры конфигурации платёжного моста.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	RedisURL    string `env:"REDIS_URL"`
	RedisPrefix string `env:"REDIS_PREFIX"`
	APIKey      string `env:"API_KEY"`

	RPCURL       string `env:"RPC_URL"`
	ChainID      int64  `env:"CHAIN_ID"`
	PoolAddress  string `env:"POOL_ADDRESS"`
	TokenAddress string `env:"TOKEN_ADDRESS"`

	OracleRPCURL  string `env:"ORACLE_RPC_URL"`
	OracleAddress string `env:"ORACLE_ADDRESS"`

	// SignerKey читается только из окружения, чтобы ключ не попадал в список процессов.
	SignerKey string `env:"SIGNER_KEY"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisURL, "redis", "", "redis URL")
	flag.StringVar(&cfg.RedisPrefix, "redis-prefix", "rwa-bridge:settlement", "redis key prefix")
	flag.StringVar(&cfg.APIKey, "k", "", "API key expected in X-API-KEY")
	flag.StringVar(&cfg.RPCURL, "rpc", "", "RPC endpoint of the pool and token chain")
	flag.Int64Var(&cfg.ChainID, "chain-id", 0, "chain id used for transaction signing")
	flag.StringVar(&cfg.PoolAddress, "pool", "", "liquidity pool contract address")
	flag.StringVar(&cfg.TokenAddress, "token", "", "settlement token contract address")
	flag.StringVar(&cfg.OracleRPCURL, "oracle-rpc", "", "RPC endpoint of the oracle chain")
	flag.StringVar(&cfg.OracleAddress, "oracle", "", "rate oracle contract address")

	flag.Parse()

	overrideString(&cfg.RunAddress, fromEnv.RunAddress)
	overrideString(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	overrideString(&cfg.RedisURL, fromEnv.RedisURL)
	overrideString(&cfg.RedisPrefix, fromEnv.RedisPrefix)
	overrideString(&cfg.APIKey, fromEnv.APIKey)
	overrideString(&cfg.RPCURL, fromEnv.RPCURL)
	overrideString(&cfg.PoolAddress, fromEnv.PoolAddress)
	overrideString(&cfg.TokenAddress, fromEnv.TokenAddress)
	overrideString(&cfg.OracleRPCURL, fromEnv.OracleRPCURL)
	overrideString(&cfg.OracleAddress, fromEnv.OracleAddress)
	if fromEnv.ChainID != 0 {
		cfg.ChainID = fromEnv.ChainID
	}
	cfg.SignerKey = fromEnv.SignerKey

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.OracleAddress != "" && cfg.OracleRPCURL == "" {
		cfg.OracleRPCURL = cfg.RPCURL
	}

	return cfg, nil
}

func overrideString(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}

// Validate проверяет обязательные параметры подключения к блокчейну.
func (c *Config) Validate() error {
	var errs []error

	if c.APIKey == "" {
		errs = append(errs, errors.New("api key is required"))
	}
	if c.RPCURL == "" {
		errs = append(errs, errors.New("rpc url is required"))
	}
	if c.ChainID <= 0 {
		errs = append(errs, errors.New("chain id must be positive"))
	}
	if !common.IsHexAddress(c.PoolAddress) {
		errs = append(errs, fmt.Errorf("invalid pool address %q", c.PoolAddress))
	}
	if !common.IsHexAddress(c.TokenAddress) {
		errs = append(errs, fmt.Errorf("invalid token address %q", c.TokenAddress))
	}
	if c.OracleAddress != "" && !common.IsHexAddress(c.OracleAddress) {
		errs = append(errs, fmt.Errorf("invalid oracle address %q", c.OracleAddress))
	}
	if c.SignerKey == "" {
		errs = append(errs, errors.New("signer key is required"))
	}

	return errors.Join(errs...)
}

// OracleEnabled сообщает, настроен ли внешний оракул курса.
func (c *Config) OracleEnabled() bool {
	return c.OracleAddress != ""
}

// ChainIDBig возвращает идентификатор сети в виде *big.Int.
func (c *Config) ChainIDBig() *big.Int {
	return big.NewInt(c.ChainID)
}
