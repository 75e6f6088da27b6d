// Package httpclient builds the outbound HTTP client shared by the catalog
// and document fetchers.
package httpclient

import (
	"fmt"
	"io"
	"net/http"

	"github.com/doyensec/safeurl"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/BulletinWatch/internal/config"
)

// MaxBodyBytes caps how much of a response body is read.
const MaxBodyBytes = 32 << 20

// New returns a client that sets the configured User-Agent and waits on a
// shared rate limiter before every request. Unless private networks are
// allowed, connections are made through safeurl, which refuses private,
// loopback, and link-local addresses after DNS resolution.
func New(cfg config.HTTP) *http.Client {
	var base *http.Client
	if cfg.AllowPrivateNetworks {
		base = &http.Client{Timeout: cfg.Timeout}
	} else {
		sc := safeurl.GetConfigBuilder().
			SetTimeout(cfg.Timeout).
			SetAllowedSchemes("http", "https").
			SetAllowedPorts(80, 443).
			Build()
		base = safeurl.Client(sc).Client
	}

	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	base.Transport = Wrap(transport, cfg.UserAgent, cfg.RequestsPerSecond)
	return base
}

// Wrap decorates a transport with the User-Agent header and rate limit.
// A non-positive rps disables limiting.
func Wrap(next http.RoundTripper, userAgent string, rps float64) http.RoundTripper {
	t := &transport{next: next, userAgent: userAgent}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return t
}

type transport struct {
	next      http.RoundTripper
	userAgent string
	limiter   *rate.Limiter
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.next.RoundTrip(req)
}

// ReadBody reads at most MaxBodyBytes of a response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}
