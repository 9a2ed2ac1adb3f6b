package httpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/proxy"
)

const (
	defaultClientTimeout         = 30 * time.Second
	defaultDialTimeout           = 5 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 64
	defaultMaxIdleConnsPerHost   = 16
)

// ErrUnsupportedProxy is returned for proxy URLs with an unknown scheme.
var ErrUnsupportedProxy = errors.New("httpx: unsupported proxy scheme")

// Options configure the shared download client.
type Options struct {
	Timeout time.Duration
	// Headers are added to every request that does not set them itself.
	Headers map[string]string
	// Proxy is an http, https, socks5 or socks5h URL. Empty means the
	// environment proxy settings apply.
	Proxy string
	// LimitPerHost caps concurrent connections per host. Zero means no cap.
	LimitPerHost int
	// Tracing wraps the transport with OpenTelemetry instrumentation.
	Tracing bool
}

// NewClient returns a hardened HTTP client with default settings.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   clientTimeout(timeout),
		Transport: newTransport(clientTimeout(timeout)),
	}
}

// New returns the client used for manifests, keys and segments.
func New(opts Options) (*http.Client, error) {
	timeout := clientTimeout(opts.Timeout)
	transport := newTransport(timeout)
	transport.MaxConnsPerHost = opts.LimitPerHost

	if opts.Proxy != "" {
		if err := applyProxy(transport, opts.Proxy); err != nil {
			return nil, err
		}
	}

	var rt http.RoundTripper = transport
	if len(opts.Headers) > 0 {
		rt = &headerTransport{next: rt, headers: opts.Headers}
	}
	if opts.Tracing {
		rt = otelhttp.NewTransport(rt)
	}
	return &http.Client{Timeout: timeout, Transport: rt}, nil
}

func clientTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return defaultClientTimeout
	}
	return timeout
}

func newTransport(timeout time.Duration) *http.Transport {
	dialTimeout := timeout
	if dialTimeout > defaultDialTimeout {
		dialTimeout = defaultDialTimeout
	}

	responseHeaderTimeout := timeout
	if responseHeaderTimeout > defaultResponseHeaderTimeout {
		responseHeaderTimeout = defaultResponseHeaderTimeout
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
}

func applyProxy(transport *http.Transport, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("httpx: parse proxy %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
		return nil
	case "socks5", "socks5h":
		base := &net.Dialer{Timeout: transport.TLSHandshakeTimeout, KeepAlive: 30 * time.Second}
		d, err := proxy.FromURL(u, base)
		if err != nil {
			return fmt.Errorf("httpx: socks proxy %q: %w", u.Redacted(), err)
		}
		transport.Proxy = nil
		if cd, ok := d.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return d.Dial(network, addr)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedProxy, u.Scheme)
	}
}

type headerTransport struct {
	next    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.next.RoundTrip(req)
}
