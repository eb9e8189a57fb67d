package ensembl

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/orthomap/internal/version"
	"github.com/shpitdev/orthomap/pkg/pipeline/core"
	"golang.org/x/time/rate"
)

const (
	DefaultServer = "https://rest.ensembl.org"

	// SourceSpecies is the species queried for gene symbols.
	SourceSpecies = "rattus_norvegicus"
	// TargetSpecies is the only homology target kept from responses.
	TargetSpecies = "homo_sapiens"
)

type ClientConfig struct {
	// Server is the REST base URL. Defaults to DefaultServer.
	Server string
	// RequestTimeout bounds a single HTTP attempt. Defaults to 30s.
	RequestTimeout time.Duration
	// RateLimitRPS is a global limit on requests across all callers. Set to <=0 to disable.
	RateLimitRPS float64
	// DefaultCAPath is an optional PEM bundle to trust for TLS.
	DefaultCAPath string
}

// Client performs single homology requests. It is safe for concurrent use; the underlying
// http.Client pools connections across callers.
type Client struct {
	baseURL   *url.URL
	species   string
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewClient constructs a client for the configured server.
func NewClient(cfg ClientConfig) (*Client, error) {
	server := strings.TrimSpace(cfg.Server)
	if server == "" {
		server = DefaultServer
	}
	base, err := parseBaseURL(server)
	if err != nil {
		return nil, err
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc, err := newHTTPClient(cfg.DefaultCAPath, timeout)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}

	return &Client{
		baseURL:   base,
		species:   SourceSpecies,
		http:      hc,
		limiter:   limiter,
		userAgent: version.UserAgent(),
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server URL must include a host (got %q)", raw)
	}
	// Ensure the base path ends with a slash so endpoint paths can be appended.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func newHTTPClient(defaultCAPath string, timeout time.Duration) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if strings.TrimSpace(defaultCAPath) != "" {
		b, err := os.ReadFile(strings.TrimSpace(defaultCAPath))
		if err != nil {
			return nil, fmt.Errorf("read DEFAULT_CA_PATH file: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("parse DEFAULT_CA_PATH PEM: no certs found")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// HomologyURL returns the homology query URL for a gene symbol.
func (c *Client) HomologyURL(symbol string) string {
	return c.baseURL.String() + "homology/symbol/" + url.PathEscape(c.species) + "/" + url.PathEscape(symbol) +
		"?content-type=application/json"
}

// FetchHomology performs one GET for symbol and decodes the JSON body.
//
// Non-2xx responses return *HTTPError; 429, 5xx and transport failures are additionally
// wrapped in core.TransientError.
func (c *Client) FetchHomology(ctx context.Context, symbol string) (*HomologyResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.HomologyURL(symbol), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportErr(ctx, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportErr(ctx, err)
	}
	if resp.StatusCode/100 != 2 {
		herr := newHTTPError("homology", resp, b)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5 {
			return nil, &core.TransientError{Err: herr}
		}
		return nil, herr
	}

	var out HomologyResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &out, nil
}

// DecodeError reports a 2xx body that is not valid JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode homology response: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError is a request that never produced a response (connection refused, reset,
// timeout).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "homology request: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a timeout.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

func classifyTransportErr(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return &core.TransientError{Err: &TransportError{Err: err}}
}
