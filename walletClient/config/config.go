package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vrischmann/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	configSubdir   = "config"
	configFileName = "walletnet_config.json"
)

//go:embed default_config.json
var defaultConfigJSON []byte

// envOverrides are read from the process environment after the config file.
// Secrets belong here rather than in the file.
type envOverrides struct {
	LogLevel        string `envconfig:"WALLETNET_LOG_LEVEL"` // zerolog level name, e.g. "debug"
	LogFormat       string `envconfig:"WALLETNET_LOG_FORMAT"`
	NodeHome        string `envconfig:"WALLETNET_HOME"`
	QueryServerPort int    `envconfig:"WALLETNET_QUERY_SERVER_PORT"`
	NowNodesAPIKey  string `envconfig:"NOWNODES_API_KEY"`
	InfuraProjectID string `envconfig:"INFURA_PROJECT_ID"`
}

// ValidateConfig checks cfg and fills in defaults.
func ValidateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	// Set defaults for query server
	if cfg.QueryServerPort == 0 {
		cfg.QueryServerPort = 8080
	}

	// Set defaults for stats persistence
	if cfg.DatabaseFile == "" {
		cfg.DatabaseFile = "walletnet.db"
	}
	if cfg.StatsSnapshotIntervalSeconds == 0 {
		cfg.StatsSnapshotIntervalSeconds = 60
	}
	if cfg.StatsRetentionSeconds == 0 {
		cfg.StatsRetentionSeconds = 86400
	}

	// Load networks from the embedded defaults when none are configured
	if len(cfg.Networks) == 0 {
		var defaultCfg Config
		if err := json.Unmarshal(defaultConfigJSON, &defaultCfg); err == nil {
			cfg.Networks = defaultCfg.Networks
		} else {
			cfg.Networks = make(map[string]NetworkConfig)
		}
	}

	// Set defaults for RPC pool config
	if cfg.RPCPoolConfig.RequestTimeoutSeconds == 0 {
		cfg.RPCPoolConfig.RequestTimeoutSeconds = 10
	}
	if cfg.RPCPoolConfig.HealthCheckIntervalSeconds == 0 {
		cfg.RPCPoolConfig.HealthCheckIntervalSeconds = 30
	}
	if cfg.RPCPoolConfig.UnhealthyThreshold == 0 {
		cfg.RPCPoolConfig.UnhealthyThreshold = 3
	}

	for name, network := range cfg.Networks {
		if err := validateNetwork(name, &network); err != nil {
			return err
		}
		cfg.Networks[name] = network
	}
	return nil
}

func validateNetwork(name string, n *NetworkConfig) error {
	switch n.Kind {
	case NetworkKindEVM, NetworkKindSVM, NetworkKindElectrum, NetworkKindREST, NetworkKindGRPC:
	default:
		return fmt.Errorf("network %s: unknown kind %q", name, n.Kind)
	}
	if len(n.Providers) == 0 {
		return fmt.Errorf("network %s: at least one provider is required", name)
	}
	for i, p := range n.Providers {
		if p.Type == "" {
			return fmt.Errorf("network %s: provider %d has no type", name, i)
		}
		if p.RateLimit < 0 {
			return fmt.Errorf("network %s: provider %d has a negative rate limit", name, i)
		}
	}

	if n.Kind != NetworkKindElectrum {
		return nil
	}
	if n.HandshakeTimeoutSeconds == 0 {
		n.HandshakeTimeoutSeconds = 10
	}
	if n.KeepAlive != nil {
		if n.KeepAlive.IntervalSeconds <= 0 {
			return fmt.Errorf("network %s: keep_alive.interval_seconds must be positive", name)
		}
		switch n.KeepAlive.Kind {
		case "":
			n.KeepAlive.Kind = PingKindPlain
		case PingKindPlain:
		case PingKindMessage:
			if n.KeepAlive.Message == "" {
				return fmt.Errorf("network %s: keep_alive.message is required for message pings", name)
			}
		default:
			return fmt.Errorf("network %s: keep_alive.kind must be 'plain' or 'message'", name)
		}
	}
	if n.IdleTimeoutSeconds < 0 {
		return fmt.Errorf("network %s: idle_timeout_seconds must not be negative", name)
	}
	return nil
}

// ApplyEnv overlays environment variables on cfg. Unset variables leave cfg untouched.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.InitWithOptions(&env, envconfig.Options{AllOptional: true}); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.LogLevel != "" {
		level, err := zerolog.ParseLevel(strings.ToLower(env.LogLevel))
		if err != nil {
			return fmt.Errorf("invalid WALLETNET_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = int(level)
	}
	if env.LogFormat != "" {
		cfg.LogFormat = env.LogFormat
	}
	if env.NodeHome != "" {
		cfg.NodeHome = env.NodeHome
	}
	if env.QueryServerPort != 0 {
		cfg.QueryServerPort = env.QueryServerPort
	}
	if env.NowNodesAPIKey != "" {
		cfg.Credentials.NowNodesAPIKey = env.NowNodesAPIKey
	}
	if env.InfuraProjectID != "" {
		cfg.Credentials.InfuraProjectID = env.InfuraProjectID
	}
	return nil
}

// Save writes the given config to <basePath>/config/walletnet_config.json.
func Save(cfg *Config, basePath string) error {
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, configSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, configFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads and returns the config from <basePath>/config/walletnet_config.json.
func Load(basePath string) (Config, error) {
	return LoadFile(filepath.Join(basePath, configSubdir, configFileName))
}

// LoadFile reads a JSON config, or YAML when the file ends in .yaml or .yml.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}
