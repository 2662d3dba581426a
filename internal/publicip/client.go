package publicip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/0xReLogic/TryHackMe/internal/logging"
	"github.com/0xReLogic/TryHackMe/internal/tracing"
)

// Unknown is reported whenever the lookup fails for any reason.
const Unknown = "Unknown"

var (
	ErrNoURL             = errors.New("public ip service url is not configured")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrBadStatus         = errors.New("public ip service returned an error status")
)

var lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tryhackme_public_ip_lookups_total",
	Help: "Public IP lookups by outcome",
}, []string{"result"})

// Client queries an external service that echoes the caller's public IP as plain text.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

// NewClient returns a client for serviceURL. A zero timeout means no timeout.
func NewClient(serviceURL string, timeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	return &Client{
		URL: serviceURL,
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Lookup fetches the service body verbatim. Status codes of 400 and above are errors.
func (c *Client) Lookup(ctx context.Context) (string, error) {
	if c.URL == "" {
		return "", ErrNoURL
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("parse public ip service url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// IP returns the public IP or Unknown. Errors never reach the caller.
func (c *Client) IP(ctx context.Context) string {
	ctx, span := tracing.StartSpan(ctx, "public_ip_lookup")
	defer span.End()

	ip, err := c.Lookup(ctx)
	if err != nil {
		lookupsTotal.WithLabelValues("failure").Inc()
		span.SetStatus(codes.Error, err.Error())
		logging.LogLookupFailure(ctx, c.URL, err)
		return Unknown
	}
	lookupsTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.Int("public_ip.size", len(ip)))
	span.SetStatus(codes.Ok, "")
	return ip
}
