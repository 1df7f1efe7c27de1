package config

import (
	"fmt"
	"sort"
	"time"
)

// NetworkKind selects the endpoint adapter used for a network
type NetworkKind string

const (
	// NetworkKindEVM is a JSON-RPC EVM chain served over HTTP(S)
	NetworkKindEVM NetworkKind = "evm"
	// NetworkKindSVM is a Solana JSON-RPC cluster
	NetworkKindSVM NetworkKind = "svm"
	// NetworkKindElectrum is an Electrum protocol server reached over WebSocket
	NetworkKindElectrum NetworkKind = "electrum"
	// NetworkKindREST is a generic HTTP REST backend (indexers, explorers)
	NetworkKindREST NetworkKind = "rest"
	// NetworkKindGRPC is a gRPC backend exposing the standard health service
	NetworkKindGRPC NetworkKind = "grpc"
)

// Keepalive ping kinds
const (
	PingKindPlain   = "plain"
	PingKindMessage = "message"
)

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level" yaml:"log_level"`     // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format" yaml:"log_format"`   // "json" or "console"
	LogSampler bool   `json:"log_sampler" yaml:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	NodeHome string `json:"node_home" yaml:"node_home"` // Home directory (default: ~/.walletnet)

	// Query Server Config
	QueryServerPort int `json:"query_server_port" yaml:"query_server_port"` // Port for HTTP query server (default: 8080)

	// Stats persistence
	DatabaseFile                 string `json:"database_file" yaml:"database_file"`                                   // SQLite file under <home>/data (default: walletnet.db)
	StatsSnapshotIntervalSeconds int    `json:"stats_snapshot_interval_seconds" yaml:"stats_snapshot_interval_seconds"` // default: 60
	StatsRetentionSeconds        int    `json:"stats_retention_seconds" yaml:"stats_retention_seconds"`                 // default: 86400

	// Provider credentials, usually supplied through the environment
	Credentials Credentials `json:"credentials" yaml:"credentials"`

	// Failover group tuning shared by all networks
	RPCPoolConfig RPCPoolConfig `json:"rpc_pool_config" yaml:"rpc_pool_config"`

	// Per-network provider lists keyed by network name
	Networks map[string]NetworkConfig `json:"networks" yaml:"networks"`
}

// Credentials holds API keys for the commercial node providers
type Credentials struct {
	NowNodesAPIKey  string                         `json:"nownodes_api_key,omitempty" yaml:"nownodes_api_key,omitempty"`
	GetBlockTokens  map[string]string              `json:"getblock_tokens,omitempty" yaml:"getblock_tokens,omitempty"` // access token per network
	InfuraProjectID string                         `json:"infura_project_id,omitempty" yaml:"infura_project_id,omitempty"`
	QuickNode       map[string]QuickNodeCredential `json:"quicknode,omitempty" yaml:"quicknode,omitempty"` // per network
}

// QuickNodeCredential identifies one QuickNode endpoint
type QuickNodeCredential struct {
	Subdomain string `json:"subdomain" yaml:"subdomain"`
	APIKey    string `json:"api_key" yaml:"api_key"`
}

// RPCPoolConfig tunes every provider group
type RPCPoolConfig struct {
	RequestTimeoutSeconds      int `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`             // Per attempt timeout (default: 10)
	HealthCheckIntervalSeconds int `json:"health_check_interval_seconds" yaml:"health_check_interval_seconds"` // Background probe interval, -1 disables (default: 30)
	UnhealthyThreshold         int `json:"unhealthy_threshold" yaml:"unhealthy_threshold"`                     // Consecutive failures before an endpoint is reported unhealthy (default: 3)
}

// RequestTimeout returns the per attempt timeout
func (c RPCPoolConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// HealthCheckInterval returns the probe interval, zero when probing is disabled
func (c RPCPoolConfig) HealthCheckInterval() time.Duration {
	if c.HealthCheckIntervalSeconds < 0 {
		return 0
	}
	return time.Duration(c.HealthCheckIntervalSeconds) * time.Second
}

// NetworkConfig describes one logical network and its ranked providers
type NetworkConfig struct {
	Kind      NetworkKind      `json:"kind" yaml:"kind"`
	ChainID   int64            `json:"chain_id,omitempty" yaml:"chain_id,omitempty"` // EVM only, verified by the health checker when set
	Providers []ProviderConfig `json:"providers" yaml:"providers"`                   // Priority order

	// REST only: path requested by the health probe (default: "/")
	HealthPath string `json:"health_path,omitempty" yaml:"health_path,omitempty"`

	// Persistent connection settings (electrum)
	KeepAlive               *KeepAliveConfig `json:"keep_alive,omitempty" yaml:"keep_alive,omitempty"`
	IdleTimeoutSeconds      int              `json:"idle_timeout_seconds,omitempty" yaml:"idle_timeout_seconds,omitempty"`
	HandshakeTimeoutSeconds int              `json:"handshake_timeout_seconds,omitempty" yaml:"handshake_timeout_seconds,omitempty"`
}

// ProviderConfig is one backend entry; Type selects how URL and headers are resolved
type ProviderConfig struct {
	Type      string  `json:"type" yaml:"type"`                               // public, nownodes, getblock, quicknode, infura
	URL       string  `json:"url,omitempty" yaml:"url,omitempty"`             // required for public
	Subdomain string  `json:"subdomain,omitempty" yaml:"subdomain,omitempty"` // nownodes host prefix or infura network
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	Burst     int     `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// KeepAliveConfig configures the keepalive ping of a persistent connection
type KeepAliveConfig struct {
	IntervalSeconds int    `json:"interval_seconds" yaml:"interval_seconds"`
	Kind            string `json:"kind" yaml:"kind"`                           // "plain" or "message"
	Message         string `json:"message,omitempty" yaml:"message,omitempty"` // sent as a text frame when Kind is "message"
}

// Interval returns the keepalive period
func (k KeepAliveConfig) Interval() time.Duration {
	return time.Duration(k.IntervalSeconds) * time.Second
}

// IdleTimeout returns the idle disconnect period, zero when disabled
func (n NetworkConfig) IdleTimeout() time.Duration {
	return time.Duration(n.IdleTimeoutSeconds) * time.Second
}

// HandshakeTimeout returns the connect timeout for persistent connections
func (n NetworkConfig) HandshakeTimeout() time.Duration {
	return time.Duration(n.HandshakeTimeoutSeconds) * time.Second
}

// GetNetworkConfig returns the configuration for a specific network
func (c *Config) GetNetworkConfig(name string) (NetworkConfig, error) {
	if c.Networks == nil {
		return NetworkConfig{}, fmt.Errorf("no network configs found")
	}
	cfg, ok := c.Networks[name]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("no config found for network %s", name)
	}
	return cfg, nil
}

// NetworkNames returns the configured network names in sorted order
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
