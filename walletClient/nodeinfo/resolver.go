package nodeinfo

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pushchain/push-wallet-network/walletClient/config"
	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
)

// Provider types accepted in ProviderConfig.Type
const (
	ProviderPublic    = "public"
	ProviderNowNodes  = "nownodes"
	ProviderGetBlock  = "getblock"
	ProviderQuickNode = "quicknode"
	ProviderInfura    = "infura"
)

// NowNodes expects the key in this header
const nowNodesAPIKeyHeader = "api-key"

// NodeInfo is everything needed to reach one backend
type NodeInfo struct {
	URL      string
	Headers  map[string]string
	Provider string
}

// Host returns the host part of the URL
func (n NodeInfo) Host() string {
	u, err := url.Parse(n.URL)
	if err != nil || u.Host == "" {
		return n.URL
	}
	return u.Host
}

// Resolver turns provider entries of one network into node info, filling in credentials
type Resolver struct {
	network     string
	kind        config.NetworkKind
	credentials config.Credentials
}

// NewResolver creates a resolver for network
func NewResolver(network string, kind config.NetworkKind, credentials config.Credentials) *Resolver {
	return &Resolver{network: network, kind: kind, credentials: credentials}
}

// Resolve returns the node info for p. Unknown provider types and missing credentials are
// CONFIG errors.
func (r *Resolver) Resolve(p config.ProviderConfig) (NodeInfo, error) {
	var (
		info NodeInfo
		err  error
	)
	switch strings.ToLower(p.Type) {
	case ProviderPublic, "":
		info, err = r.public(p)
	case ProviderNowNodes:
		info, err = r.nowNodes(p)
	case ProviderGetBlock:
		info, err = r.getBlock()
	case ProviderQuickNode:
		info, err = r.quickNode()
	case ProviderInfura:
		info, err = r.infura(p)
	default:
		return NodeInfo{}, r.configError("unknown provider type %q", p.Type)
	}
	if err != nil {
		return NodeInfo{}, err
	}
	if info.Provider == "" {
		info.Provider = strings.ToLower(p.Type)
	}
	return info, nil
}

// ResolveAll resolves every provider in order. Providers that cannot be resolved are returned
// separately so the caller can log and skip them.
func (r *Resolver) ResolveAll(providers []config.ProviderConfig) ([]NodeInfo, []error) {
	var (
		infos []NodeInfo
		errs  []error
	)
	for _, p := range providers {
		info, err := r.Resolve(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		infos = append(infos, info)
	}
	return infos, errs
}

func (r *Resolver) public(p config.ProviderConfig) (NodeInfo, error) {
	u, err := url.Parse(p.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NodeInfo{}, r.configError("invalid public provider URL %q", p.URL)
	}
	return NodeInfo{URL: p.URL, Provider: ProviderPublic}, nil
}

func (r *Resolver) nowNodes(p config.ProviderConfig) (NodeInfo, error) {
	if p.Subdomain == "" {
		return NodeInfo{}, r.configError("nownodes provider requires a subdomain")
	}
	if r.credentials.NowNodesAPIKey == "" {
		return NodeInfo{}, r.configError("nownodes API key is not configured")
	}
	link := fmt.Sprintf("https://%s.nownodes.io", p.Subdomain)
	if r.kind == config.NetworkKindElectrum {
		link = fmt.Sprintf("wss://%s.nownodes.io/wss", p.Subdomain)
	}
	return NodeInfo{
		URL:     link,
		Headers: map[string]string{nowNodesAPIKeyHeader: r.credentials.NowNodesAPIKey},
	}, nil
}

func (r *Resolver) getBlock() (NodeInfo, error) {
	token := r.credentials.GetBlockTokens[r.network]
	if token == "" {
		return NodeInfo{}, r.configError("getblock access token is not configured")
	}
	scheme := "https"
	if r.kind == config.NetworkKindElectrum {
		scheme = "wss"
	}
	return NodeInfo{URL: fmt.Sprintf("%s://go.getblock.io/%s", scheme, token)}, nil
}

func (r *Resolver) quickNode() (NodeInfo, error) {
	cred, ok := r.credentials.QuickNode[r.network]
	if !ok || cred.Subdomain == "" || cred.APIKey == "" {
		return NodeInfo{}, r.configError("quicknode credentials are not configured")
	}
	return NodeInfo{URL: fmt.Sprintf("https://%s.quiknode.pro/%s", cred.Subdomain, cred.APIKey)}, nil
}

func (r *Resolver) infura(p config.ProviderConfig) (NodeInfo, error) {
	if r.kind != config.NetworkKindEVM {
		return NodeInfo{}, r.configError("infura serves EVM networks only")
	}
	if p.Subdomain == "" {
		return NodeInfo{}, r.configError("infura provider requires a subdomain")
	}
	if r.credentials.InfuraProjectID == "" {
		return NodeInfo{}, r.configError("infura project id is not configured")
	}
	return NodeInfo{URL: fmt.Sprintf("https://%s.infura.io/v3/%s", p.Subdomain, r.credentials.InfuraProjectID)}, nil
}

func (r *Resolver) configError(format string, args ...interface{}) error {
	return walleterrors.NewConfigError(r.network, fmt.Sprintf(format, args...))
}
