package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration, loaded from YAML with
// environment-variable overrides applied on top.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Auth     AuthConfig     `yaml:"auth"`

	ChainConfigService ServiceEndpointConfig `yaml:"chainConfigService"`
	ExecutionContext   ServiceEndpointConfig `yaml:"executionContextService"`

	RPC     RPCConfig               `yaml:"rpc"`
	Session SessionConfig           `yaml:"session"`
	Gas     GasConfig               `yaml:"gas"`
	Chains  map[string]ChainConfig  `yaml:"chains"`
	Signers map[string]SignerConfig `yaml:"signers"` // keyed by organization id
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// AuthConfig service-token auth configuration for the action API.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
}

// ServiceEndpointConfig points at an internal HTTP collaborator service.
type ServiceEndpointConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Timeout int    `yaml:"timeout"` // seconds
}

// RPCConfig retry/timeout policy applied to every RPC endpoint attempt.
type RPCConfig struct {
	MaxRetries        int `yaml:"maxRetries"`
	AttemptTimeoutSec int `yaml:"attemptTimeoutSeconds"`
	BackoffBaseMs     int `yaml:"backoffBaseMs"`
	BackoffMaxMs      int `yaml:"backoffMaxMs"`
}

// AttemptTimeout returns the per-attempt timeout.
func (c RPCConfig) AttemptTimeout() time.Duration {
	if c.AttemptTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.AttemptTimeoutSec) * time.Second
}

// SessionConfig nonce-session tuning. All values are deliberately
// configuration, not constants baked into the session manager.
type SessionConfig struct {
	LockRetries            int `yaml:"lockRetries"`
	LockRetryBackoffMs     int `yaml:"lockRetryBackoffMs"`
	LockStalenessSec       int `yaml:"lockStalenessSeconds"`
	ConfirmationTimeoutSec int `yaml:"confirmationTimeoutSeconds"`
}

// LockStaleness returns the threshold past which a held lock is treated
// as left behind by a crashed process and may be reclaimed.
func (c SessionConfig) LockStaleness() time.Duration {
	if c.LockStalenessSec <= 0 {
		return 3 * time.Minute
	}
	return time.Duration(c.LockStalenessSec) * time.Second
}

// LockRetryBackoff returns the base delay between lock acquisition attempts.
func (c SessionConfig) LockRetryBackoff() time.Duration {
	if c.LockRetryBackoffMs <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(c.LockRetryBackoffMs) * time.Millisecond
}

// ConfirmationTimeout returns the total budget for waiting on a receipt.
func (c SessionConfig) ConfirmationTimeout() time.Duration {
	if c.ConfirmationTimeoutSec <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.ConfirmationTimeoutSec) * time.Second
}

// GasConfig gas strategy tuning.
type GasConfig struct {
	ScheduledMultiplier float64 `yaml:"scheduledMultiplier"`
	ManualMultiplier    float64 `yaml:"manualMultiplier"`
}

// ChainFamily identifies the wire protocol a chain speaks.
type ChainFamily string

const (
	ChainFamilyEVM    ChainFamily = "evm"
	ChainFamilySolana ChainFamily = "solana"
)

// ChainConfig per-chain settings. Primary/fallback RPC URLs here are the
// platform defaults; user overrides come from the chain configuration
// service and take priority at request time.
type ChainConfig struct {
	ChainID     uint64      `yaml:"chainId"`
	Name        string      `yaml:"name"`
	Family      ChainFamily `yaml:"family"`
	PrimaryRPC  string      `yaml:"primaryRpc"`
	FallbackRPC string      `yaml:"fallbackRpc"`
	ExplorerURL string      `yaml:"explorerUrl"`
	Enabled     bool        `yaml:"enabled"`
}

// SignerConfig per-organization signing key configuration.
type SignerConfig struct {
	PrivateKey string `yaml:"privateKey"` // hex, without 0x prefix
}

var AppConfig *Config

// LoadConfig loads the configuration file and applies environment overrides.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	AppConfig = &config
	return nil
}

func applyDefaults(config *Config) {
	if config.RPC.MaxRetries <= 0 {
		config.RPC.MaxRetries = 3
	}
	if config.RPC.AttemptTimeoutSec <= 0 {
		config.RPC.AttemptTimeoutSec = 30
	}
	if config.RPC.BackoffBaseMs <= 0 {
		config.RPC.BackoffBaseMs = 1000
	}
	if config.RPC.BackoffMaxMs <= 0 {
		config.RPC.BackoffMaxMs = 5000
	}
	if config.Session.LockRetries <= 0 {
		config.Session.LockRetries = 3
	}
	if config.Gas.ScheduledMultiplier <= 0 {
		config.Gas.ScheduledMultiplier = 1.2
	}
	if config.Gas.ManualMultiplier <= 0 {
		config.Gas.ManualMultiplier = 1.5
	}
}

func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if chainCfgURL := os.Getenv("CHAIN_CONFIG_SERVICE_URL"); chainCfgURL != "" {
		config.ChainConfigService.BaseURL = chainCfgURL
	}
	if execCtxURL := os.Getenv("EXECUTION_CONTEXT_SERVICE_URL"); execCtxURL != "" {
		config.ExecutionContext.BaseURL = execCtxURL
	}

	// Per-chain RPC endpoints, e.g. POLYGON_PRIMARY_RPC / POLYGON_FALLBACK_RPC.
	for chainName, chainConfig := range config.Chains {
		envPrefix := strings.ToUpper(chainName)
		if primary := os.Getenv(envPrefix + "_PRIMARY_RPC"); primary != "" {
			chainConfig.PrimaryRPC = primary
		}
		if fallback := os.Getenv(envPrefix + "_FALLBACK_RPC"); fallback != "" {
			chainConfig.FallbackRPC = fallback
		}
		config.Chains[chainName] = chainConfig
	}

	// Per-organization signing keys, e.g. SIGNER_KEY_<ORGID>.
	for orgID, signerConfig := range config.Signers {
		envKey := "SIGNER_KEY_" + strings.ToUpper(orgID)
		if key := os.Getenv(envKey); key != "" {
			signerConfig.PrivateKey = key
			config.Signers[orgID] = signerConfig
		}
	}
}

// GetChainConfig returns the platform-default configuration for a chain id.
func GetChainConfig(chainID uint64) (*ChainConfig, error) {
	if AppConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	for _, chain := range AppConfig.Chains {
		if chain.ChainID == chainID && chain.Enabled {
			chainCopy := chain
			return &chainCopy, nil
		}
	}

	return nil, fmt.Errorf("chain %d not found or disabled", chainID)
}
