package endpoints

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
)

const defaultGRPCPort = "9090"

// GRPCEndpoint is a gRPC backend. Callers build service clients on Conn and classify their
// errors with ClassifyGRPCError.
type GRPCEndpoint struct {
	network string
	target  string
	host    string
	conn    *grpc.ClientConn
}

// GRPCHealthCheck probes a GRPCEndpoint through the standard health service
var GRPCHealthCheck = rpcpool.HealthCheckFunc[*GRPCEndpoint](func(ctx context.Context, e *GRPCEndpoint) error {
	return e.CheckHealth(ctx)
})

// NewGRPCEndpoint creates a client connection for rawURL. https:// selects TLS; http:// or no
// scheme is plaintext. Port 9090 is used when none is given.
func NewGRPCEndpoint(network, rawURL string, opts ...grpc.DialOption) (*GRPCEndpoint, error) {
	target, useTLS, err := grpcTarget(rawURL)
	if err != nil {
		return nil, walleterrors.NewConfigError(network, err.Error())
	}

	if useTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, walleterrors.WrapChainError(err, walleterrors.ErrCodeConfig, network,
			fmt.Sprintf("failed to create gRPC connection to %s", target))
	}

	host := target
	if i := strings.LastIndex(target, ":"); i > 0 {
		host = target[:i]
	}
	return &GRPCEndpoint{network: network, target: target, host: host, conn: conn}, nil
}

func grpcTarget(rawURL string) (string, bool, error) {
	if rawURL == "" {
		return "", false, fmt.Errorf("empty gRPC endpoint")
	}

	target := rawURL
	useTLS := false
	switch {
	case strings.HasPrefix(rawURL, "https://"):
		target = strings.TrimPrefix(rawURL, "https://")
		useTLS = true
	case strings.HasPrefix(rawURL, "http://"):
		target = strings.TrimPrefix(rawURL, "http://")
	}
	target = strings.TrimSuffix(target, "/")

	u, err := url.Parse("//" + target)
	if err != nil || u.Hostname() == "" {
		return "", false, fmt.Errorf("invalid gRPC endpoint %q", rawURL)
	}
	if u.Port() == "" {
		target = strings.TrimSuffix(target, ":") + ":" + defaultGRPCPort
	}
	return target, useTLS, nil
}

// Host returns the backend host without port
func (e *GRPCEndpoint) Host() string {
	return e.host
}

// Target returns the dial target, host:port
func (e *GRPCEndpoint) Target() string {
	return e.target
}

// Conn returns the client connection
func (e *GRPCEndpoint) Conn() *grpc.ClientConn {
	return e.conn
}

// CheckHealth asks the standard health service whether the server is serving
func (e *GRPCEndpoint) CheckHealth(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(e.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return ClassifyGRPCError(ctx, e.network, e.host, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return walleterrors.NewRPCError(e.network, fmt.Sprintf("server reports %s", resp.GetStatus()), nil).WithHost(e.host)
	}
	return nil
}

// Close closes the client connection
func (e *GRPCEndpoint) Close() error {
	return e.conn.Close()
}

// ClassifyGRPCError maps a gRPC status to the error taxonomy. Unavailability, throttling and
// server faults are retryable; answers about the request itself are not.
func ClassifyGRPCError(ctx context.Context, network, host string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	st, ok := status.FromError(err)
	if !ok {
		return walleterrors.NewNetworkError(network, "gRPC call failed", err).WithHost(host)
	}

	var chainErr *walleterrors.ChainError
	switch st.Code() {
	case codes.NotFound:
		chainErr = walleterrors.NewNotFoundError(network, st.Message(), err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.AlreadyExists, codes.PermissionDenied:
		chainErr = walleterrors.NewRejectedError(network, st.Message(), err)
	case codes.ResourceExhausted:
		chainErr = walleterrors.NewRateLimitError(network, st.Message(), err)
	case codes.DeadlineExceeded:
		chainErr = walleterrors.NewTimeoutError(network, st.Message(), err)
	case codes.Unavailable, codes.Canceled:
		// Canceled without a cancelled ctx means the stream was torn down underneath us
		chainErr = walleterrors.NewNetworkError(network, st.Message(), err)
	default:
		// Internal, Unknown, Aborted, Unimplemented, Unauthenticated, DataLoss
		chainErr = walleterrors.NewRPCError(network, st.Message(), err)
	}
	return chainErr.WithHost(host).WithContext("grpc_code", st.Code().String())
}
