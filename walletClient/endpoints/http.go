package endpoints

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
)

const maxErrorBodyLength = 256

// HTTPConfig describes one HTTP backend
type HTTPConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	// RateLimit caps requests per second to this backend; zero means unlimited
	RateLimit float64
	Burst     int
	// HealthPath is requested by CheckHealth, "/" when empty
	HealthPath string
}

// HTTPEndpoint is a stateless JSON-over-HTTP backend such as an indexer or explorer API
type HTTPEndpoint struct {
	network    string
	host       string
	baseURL    string
	healthPath string
	client     *resty.Client
	limiter    *rate.Limiter
}

// NewHTTPEndpoint creates an endpoint for cfg.URL
func NewHTTPEndpoint(network string, cfg HTTPConfig) (*HTTPEndpoint, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, walleterrors.NewConfigError(network, fmt.Sprintf("invalid HTTP endpoint URL %q", cfg.URL))
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetHeader("Accept", "application/json").
		SetHeaders(cfg.Headers)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	e := &HTTPEndpoint{
		network:    network,
		host:       u.Host,
		baseURL:    cfg.URL,
		healthPath: cfg.HealthPath,
		client:     client,
	}
	if e.healthPath == "" {
		e.healthPath = "/"
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return e, nil
}

// Host returns the backend host
func (e *HTTPEndpoint) Host() string {
	return e.host
}

// URL returns the base URL
func (e *HTTPEndpoint) URL() string {
	return e.baseURL
}

// Get requests path with query and decodes a JSON answer into result
func (e *HTTPEndpoint) Get(ctx context.Context, path string, query map[string]string, result interface{}) error {
	return e.do(ctx, http.MethodGet, path, func(req *resty.Request) {
		req.SetQueryParams(query)
		if result != nil {
			req.SetResult(result)
		}
	})
}

// Post sends body as JSON to path and decodes a JSON answer into result
func (e *HTTPEndpoint) Post(ctx context.Context, path string, body, result interface{}) error {
	return e.do(ctx, http.MethodPost, path, func(req *resty.Request) {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
		if result != nil {
			req.SetResult(result)
		}
	})
}

// CheckHealth requests the health path and expects a 2xx answer
func (e *HTTPEndpoint) CheckHealth(ctx context.Context) error {
	return e.Get(ctx, e.healthPath, nil, nil)
}

func (e *HTTPEndpoint) do(ctx context.Context, method, path string, prepare func(*resty.Request)) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// the wait would outlast the deadline; let the group try another backend
			return walleterrors.NewRateLimitError(e.network, "local rate limit reached", err).WithHost(e.host)
		}
	}

	req := e.client.R().SetContext(ctx)
	prepare(req)
	resp, err := req.Execute(method, path)
	if err != nil {
		return e.requestError(ctx, err)
	}
	if resp.IsError() {
		return ClassifyStatus(e.network, resp.StatusCode(), resp.String()).
			WithHost(e.host).
			WithContext("method", method).
			WithContext("path", path)
	}
	return nil
}

func (e *HTTPEndpoint) requestError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return walleterrors.NewTimeoutError(e.network, "request timed out", err).WithHost(e.host)
	}
	return walleterrors.NewNetworkError(e.network, "request failed", err).WithHost(e.host)
}

// ClassifyStatus maps an HTTP error status to the error taxonomy.
//
// Throttling, timeouts and server errors are retryable. Authentication failures are too:
// they concern the credentials of one provider, not the request. 404 is NOT_FOUND and any
// other 4xx is REJECTED.
func ClassifyStatus(network string, status int, body string) *walleterrors.ChainError {
	if len(body) > maxErrorBodyLength {
		body = body[:maxErrorBodyLength]
	}
	msg := fmt.Sprintf("HTTP %d", status)
	if body != "" {
		msg = fmt.Sprintf("HTTP %d: %s", status, body)
	}

	var chainErr *walleterrors.ChainError
	switch {
	case status == http.StatusTooManyRequests:
		chainErr = walleterrors.NewRateLimitError(network, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		chainErr = walleterrors.NewTimeoutError(network, msg, nil)
	case status >= 500:
		chainErr = walleterrors.NewRPCError(network, msg, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		chainErr = walleterrors.NewRPCError(network, msg, nil)
	case status == http.StatusNotFound:
		chainErr = walleterrors.NewNotFoundError(network, msg, nil)
	default:
		chainErr = walleterrors.NewRejectedError(network, msg, nil)
	}
	return chainErr.WithContext("status", status)
}
