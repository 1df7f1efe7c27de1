package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-wallet-network/walletClient/api"
	"github.com/pushchain/push-wallet-network/walletClient/chains/electrum"
	"github.com/pushchain/push-wallet-network/walletClient/chains/evm"
	"github.com/pushchain/push-wallet-network/walletClient/chains/svm"
	"github.com/pushchain/push-wallet-network/walletClient/config"
	"github.com/pushchain/push-wallet-network/walletClient/cron"
	"github.com/pushchain/push-wallet-network/walletClient/db"
	"github.com/pushchain/push-wallet-network/walletClient/endpoints"
	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
	"github.com/pushchain/push-wallet-network/walletClient/wsconn"
)

const dataSubdir = "data"

// WalletClient owns one provider group per configured network, the typed clients built on
// them, and the diagnostics around them (health monitors, stats snapshots, query server).
type WalletClient struct {
	cfg    *config.Config
	log    zerolog.Logger
	dialer wsconn.Dialer // nil selects a gorilla dialer per network

	networks map[string]Network
	names    []string

	evm      map[string]*evm.Client
	svm      map[string]*svm.Client
	electrum map[string]*electrum.Client
	rest     map[string]*rpcpool.Group[*endpoints.HTTPEndpoint]
	grpc     map[string]*rpcpool.Group[*endpoints.GRPCEndpoint]

	db          *db.DB
	ownsDB      bool
	snapshotJob *cron.StatsSnapshotJob
	queryServer *api.Server
	probeRetry  *walleterrors.RetryConfig

	mu      sync.Mutex
	started bool
	closed  bool
}

// Option customizes a WalletClient
type Option func(*WalletClient)

// WithDialer sets the WebSocket dialer used by persistent connections
func WithDialer(d wsconn.Dialer) Option {
	return func(wc *WalletClient) { wc.dialer = d }
}

// WithDatabase uses an already opened database for stats snapshots. The caller keeps
// ownership and closes it.
func WithDatabase(d *db.DB) Option {
	return func(wc *WalletClient) { wc.db = d }
}

// WithProbeRetry overrides the retry policy of Probe
func WithProbeRetry(rc *walleterrors.RetryConfig) Option {
	return func(wc *WalletClient) { wc.probeRetry = rc }
}

// NewWalletClient builds a provider group for every network in cfg. Nothing is dialed for
// WebSocket networks until first use.
func NewWalletClient(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*WalletClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(cfg.Networks) == 0 {
		return nil, fmt.Errorf("at least one network must be configured")
	}

	wc := &WalletClient{
		cfg:      cfg,
		log:      log.With().Str("component", "wallet_client").Logger(),
		networks: make(map[string]Network, len(cfg.Networks)),
		names:    cfg.NetworkNames(),
		evm:      make(map[string]*evm.Client),
		svm:      make(map[string]*svm.Client),
		electrum: make(map[string]*electrum.Client),
		rest:     make(map[string]*rpcpool.Group[*endpoints.HTTPEndpoint]),
		grpc:     make(map[string]*rpcpool.Group[*endpoints.GRPCEndpoint]),
		probeRetry: &walleterrors.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			RetryableErrors: []walleterrors.ErrorCode{
				walleterrors.ErrCodeNetwork,
				walleterrors.ErrCodeRPC,
				walleterrors.ErrCodeTimeout,
				walleterrors.ErrCodeTransport,
				walleterrors.ErrCodeRateLimit,
			},
		},
	}
	for _, opt := range opts {
		opt(wc)
	}

	for _, name := range wc.names {
		network, err := wc.buildNetwork(ctx, name, cfg.Networks[name])
		if err != nil {
			wc.closeNetworks()
			return nil, fmt.Errorf("failed to set up network %s: %w", name, err)
		}
		wc.networks[name] = network

		stats := network.Stats()
		wc.log.Info().
			Str("network", name).
			Str("kind", string(network.Kind())).
			Int("endpoints", stats.TotalEndpoints).
			Str("primary", stats.CurrentHost).
			Msg("provider group ready")
	}
	return wc, nil
}

// Start launches health monitors, the stats snapshot job and the query server.
// Safe to call multiple times.
func (wc *WalletClient) Start(ctx context.Context) error {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if wc.started {
		return nil
	}
	if wc.closed {
		return fmt.Errorf("wallet client is stopped")
	}

	for _, name := range wc.names {
		wc.networks[name].Start(ctx)
	}

	if wc.cfg.StatsSnapshotIntervalSeconds > 0 {
		if err := wc.startSnapshots(ctx); err != nil {
			wc.stopLocked()
			return err
		}
	}

	if wc.cfg.QueryServerPort > 0 {
		var snapshots api.SnapshotReader
		if wc.db != nil {
			snapshots = wc.db
		}
		wc.queryServer = api.NewServer(wc, snapshots, wc.log, wc.cfg.QueryServerPort)
		if err := wc.queryServer.Start(); err != nil {
			wc.queryServer = nil
			wc.stopLocked()
			return fmt.Errorf("failed to start query server: %w", err)
		}
	}

	wc.started = true
	wc.log.Info().Int("networks", len(wc.names)).Msg("wallet client started")
	return nil
}

func (wc *WalletClient) startSnapshots(ctx context.Context) error {
	if wc.db == nil {
		var (
			database *db.DB
			err      error
		)
		if wc.cfg.NodeHome == "" {
			database, err = db.OpenInMemoryDB(true)
		} else {
			database, err = db.OpenFileDB(filepath.Join(wc.cfg.NodeHome, dataSubdir), wc.cfg.DatabaseFile, true)
		}
		if err != nil {
			return fmt.Errorf("failed to open stats database: %w", err)
		}
		wc.db = database
		wc.ownsDB = true
		wc.log.Info().Str("path", database.Path()).Msg("stats database opened")
	}

	wc.snapshotJob = cron.NewStatsSnapshotJob(
		wc,
		wc.db,
		time.Duration(wc.cfg.StatsSnapshotIntervalSeconds)*time.Second,
		time.Duration(wc.cfg.StatsRetentionSeconds)*time.Second,
		wc.log,
	)
	return wc.snapshotJob.Start(ctx)
}

// Stop shuts down background work and closes every endpoint. The client cannot be restarted.
func (wc *WalletClient) Stop() error {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	err := wc.stopLocked()
	wc.started = false
	return err
}

func (wc *WalletClient) stopLocked() error {
	var errs []error
	if wc.queryServer != nil {
		if err := wc.queryServer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("query server: %w", err))
		}
		wc.queryServer = nil
	}
	if wc.snapshotJob != nil {
		wc.snapshotJob.Stop()
		// last snapshot so the history covers the shutdown
		if err := wc.snapshotJob.SnapshotOnce(); err != nil {
			wc.log.Warn().Err(err).Msg("final stats snapshot failed")
		}
		wc.snapshotJob = nil
	}
	if !wc.closed {
		if err := wc.closeNetworks(); err != nil {
			errs = append(errs, err)
		}
		wc.closed = true
	}
	if wc.db != nil && wc.ownsDB {
		if err := wc.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stats database: %w", err))
		}
		wc.db = nil
		wc.ownsDB = false
	}
	return errors.Join(errs...)
}

func (wc *WalletClient) closeNetworks() error {
	var errs []error
	for name, network := range wc.networks {
		if err := network.Close(); err != nil {
			errs = append(errs, fmt.Errorf("network %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Probe runs the health check of a network through its group and retries whole probes with
// backoff while they fail with retryable errors.
func (wc *WalletClient) Probe(ctx context.Context, name string) error {
	network, err := wc.network(name)
	if err != nil {
		return err
	}

	rc := *wc.probeRetry
	rc.OnRetry = func(attempt int, err error) {
		wc.log.Warn().
			Str("network", name).
			Int("attempt", attempt).
			Err(err).
			Msg("probe failed, retrying")
	}
	return walleterrors.RetryWithConfig(ctx, func() error {
		return network.Probe(ctx)
	}, &rc)
}

// ProbeAll probes every network concurrently and returns the failures by network name
func (wc *WalletClient) ProbeAll(ctx context.Context) map[string]error {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures = make(map[string]error)
	)
	for _, name := range wc.names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := wc.Probe(ctx, name); err != nil {
				mu.Lock()
				failures[name] = err
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()
	return failures
}

// NetworkNames returns the configured network names in sorted order
func (wc *WalletClient) NetworkNames() []string {
	return append([]string(nil), wc.names...)
}

// NetworkStats returns the stats of one network
func (wc *WalletClient) NetworkStats(name string) (rpcpool.GroupStats, bool) {
	network, ok := wc.networks[name]
	if !ok {
		return rpcpool.GroupStats{}, false
	}
	return network.Stats(), true
}

// AllStats returns the stats of every network, sorted by name
func (wc *WalletClient) AllStats() []rpcpool.GroupStats {
	stats := make([]rpcpool.GroupStats, 0, len(wc.names))
	for _, name := range wc.names {
		stats = append(stats, wc.networks[name].Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Network < stats[j].Network })
	return stats
}

// EVM returns the client of an EVM network
func (wc *WalletClient) EVM(name string) (*evm.Client, error) {
	return lookup(wc, wc.evm, name, config.NetworkKindEVM)
}

// SVM returns the client of a Solana network
func (wc *WalletClient) SVM(name string) (*svm.Client, error) {
	return lookup(wc, wc.svm, name, config.NetworkKindSVM)
}

// Electrum returns the client of an Electrum network
func (wc *WalletClient) Electrum(name string) (*electrum.Client, error) {
	return lookup(wc, wc.electrum, name, config.NetworkKindElectrum)
}

// REST returns the provider group of a REST network
func (wc *WalletClient) REST(name string) (*rpcpool.Group[*endpoints.HTTPEndpoint], error) {
	return lookup(wc, wc.rest, name, config.NetworkKindREST)
}

// GRPC returns the provider group of a gRPC network
func (wc *WalletClient) GRPC(name string) (*rpcpool.Group[*endpoints.GRPCEndpoint], error) {
	return lookup(wc, wc.grpc, name, config.NetworkKindGRPC)
}

func lookup[T any](wc *WalletClient, clients map[string]T, name string, kind config.NetworkKind) (T, error) {
	var zero T
	network, err := wc.network(name)
	if err != nil {
		return zero, err
	}
	client, ok := clients[name]
	if !ok {
		return zero, walleterrors.NewConfigError(name,
			fmt.Sprintf("network is of kind %s, not %s", network.Kind(), kind))
	}
	return client, nil
}

func (wc *WalletClient) network(name string) (Network, error) {
	network, ok := wc.networks[name]
	if !ok {
		return nil, walleterrors.NewConfigError(name, "network is not configured")
	}
	return network, nil
}
