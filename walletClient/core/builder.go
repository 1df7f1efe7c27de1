package core

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/pushchain/push-wallet-network/walletClient/chains/electrum"
	"github.com/pushchain/push-wallet-network/walletClient/chains/evm"
	"github.com/pushchain/push-wallet-network/walletClient/chains/svm"
	"github.com/pushchain/push-wallet-network/walletClient/config"
	"github.com/pushchain/push-wallet-network/walletClient/endpoints"
	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/nodeinfo"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
	"github.com/pushchain/push-wallet-network/walletClient/wsconn"
)

// restHealthCheck probes a REST backend with a GET of its health path
var restHealthCheck = rpcpool.HealthCheckFunc[*endpoints.HTTPEndpoint](func(ctx context.Context, e *endpoints.HTTPEndpoint) error {
	return e.CheckHealth(ctx)
})

// resolvedProvider pairs a provider entry with its resolved node info
type resolvedProvider struct {
	config.ProviderConfig
	info nodeinfo.NodeInfo
}

// resolveProviders resolves every provider of a network. Providers that cannot be resolved
// are skipped with a warning; a network left without providers is an error.
func (wc *WalletClient) resolveProviders(name string, netCfg config.NetworkConfig) ([]resolvedProvider, error) {
	resolver := nodeinfo.NewResolver(name, netCfg.Kind, wc.cfg.Credentials)

	resolved := make([]resolvedProvider, 0, len(netCfg.Providers))
	for i, p := range netCfg.Providers {
		info, err := resolver.Resolve(p)
		if err != nil {
			wc.log.Warn().
				Str("network", name).
				Int("position", i).
				Str("provider", p.Type).
				Err(err).
				Msg("skipping provider")
			continue
		}
		resolved = append(resolved, resolvedProvider{ProviderConfig: p, info: info})
	}
	if len(resolved) == 0 {
		return nil, walleterrors.NewConfigError(name, "no usable provider configured")
	}
	return resolved, nil
}

// buildEndpoints creates one endpoint per provider, skipping the ones that fail to build
func buildEndpoints[E rpcpool.Endpoint](
	wc *WalletClient,
	name string,
	providers []resolvedProvider,
	build func(p resolvedProvider) (E, error),
) ([]E, error) {
	eps := make([]E, 0, len(providers))
	for _, p := range providers {
		ep, err := build(p)
		if err != nil {
			wc.log.Warn().
				Str("network", name).
				Str("host", p.info.Host()).
				Err(err).
				Msg("skipping endpoint")
			continue
		}
		eps = append(eps, ep)
	}
	if len(eps) == 0 {
		return nil, walleterrors.NewConfigError(name, "no endpoint could be created")
	}
	return eps, nil
}

// newGroup builds the endpoints of a network and wraps them in a provider group
func newGroup[E rpcpool.Endpoint](
	wc *WalletClient,
	name string,
	providers []resolvedProvider,
	build func(p resolvedProvider) (E, error),
) (*rpcpool.Group[E], error) {
	eps, err := buildEndpoints(wc, name, providers, build)
	if err != nil {
		return nil, err
	}
	return rpcpool.NewGroup(name, eps, &wc.cfg.RPCPoolConfig, wc.log)
}

// buildNetwork creates the group, typed client and health checker of one network
func (wc *WalletClient) buildNetwork(ctx context.Context, name string, netCfg config.NetworkConfig) (Network, error) {
	providers, err := wc.resolveProviders(name, netCfg)
	if err != nil {
		return nil, err
	}

	switch netCfg.Kind {
	case config.NetworkKindEVM:
		group, err := newGroup(wc, name, providers, func(p resolvedProvider) (*evm.Endpoint, error) {
			return evm.Dial(ctx, name, p.info)
		})
		if err != nil {
			return nil, err
		}
		wc.evm[name] = evm.NewClient(group)
		checker := evm.NewHealthChecker(netCfg.ChainID)
		return newManagedGroup[*evm.Endpoint](name, netCfg.Kind, group, checker, checker), nil

	case config.NetworkKindSVM:
		group, err := newGroup(wc, name, providers, func(p resolvedProvider) (*svm.Endpoint, error) {
			return svm.NewEndpoint(name, p.info), nil
		})
		if err != nil {
			return nil, err
		}
		wc.svm[name] = svm.NewClient(group)
		checker := svm.NewHealthChecker()
		return newManagedGroup[*svm.Endpoint](name, netCfg.Kind, group, checker, checker), nil

	case config.NetworkKindElectrum:
		dialer := wc.dialer
		if dialer == nil {
			dialer = wsconn.NewGorillaDialer(netCfg.HandshakeTimeout())
		}
		group, err := newGroup(wc, name, providers, func(p resolvedProvider) (*electrum.Endpoint, error) {
			return electrum.NewEndpoint(name, p.info, netCfg, dialer, wc.log), nil
		})
		if err != nil {
			return nil, err
		}
		wc.electrum[name] = electrum.NewClient(group)
		return newManagedGroup[*electrum.Endpoint](name, netCfg.Kind, group, electrum.HealthCheck, electrum.MonitorHealthCheck), nil

	case config.NetworkKindREST:
		group, err := newGroup(wc, name, providers, func(p resolvedProvider) (*endpoints.HTTPEndpoint, error) {
			return endpoints.NewHTTPEndpoint(name, endpoints.HTTPConfig{
				URL:        p.info.URL,
				Headers:    p.info.Headers,
				Timeout:    wc.cfg.RPCPoolConfig.RequestTimeout(),
				RateLimit:  p.RateLimit,
				Burst:      p.Burst,
				HealthPath: netCfg.HealthPath,
			})
		})
		if err != nil {
			return nil, err
		}
		wc.rest[name] = group
		return newManagedGroup[*endpoints.HTTPEndpoint](name, netCfg.Kind, group, restHealthCheck, restHealthCheck), nil

	case config.NetworkKindGRPC:
		group, err := newGroup(wc, name, providers, func(p resolvedProvider) (*endpoints.GRPCEndpoint, error) {
			var opts []grpc.DialOption
			if len(p.info.Headers) > 0 {
				opts = append(opts, grpc.WithUnaryInterceptor(headerInterceptor(p.info.Headers)))
			}
			return endpoints.NewGRPCEndpoint(name, p.info.URL, opts...)
		})
		if err != nil {
			return nil, err
		}
		wc.grpc[name] = group
		return newManagedGroup[*endpoints.GRPCEndpoint](name, netCfg.Kind, group, endpoints.GRPCHealthCheck, endpoints.GRPCHealthCheck), nil

	default:
		return nil, walleterrors.NewConfigError(name, fmt.Sprintf("unknown network kind %q", netCfg.Kind))
	}
}

// headerInterceptor sends provider headers (API keys) as gRPC metadata on every unary call
func headerInterceptor(headers map[string]string) grpc.UnaryClientInterceptor {
	pairs := make([]string, 0, 2*len(headers))
	for k, v := range headers {
		pairs = append(pairs, k, v)
	}
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
