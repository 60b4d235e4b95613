package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"

	"github.com/nao1215/qprovider/internal/config"
)

// Header names sent with every request.
const (
	HeaderClientApplication = "X-Qx-Client-Application"
	HeaderAuthorization     = "Authorization"
)

// routing decides how a request reaches the API: through an HTTP proxy
// (Transport.Proxy), through a SOCKS5 dialer, or directly.
type routing struct {
	proxies config.Proxies
}

// httpProxy implements http.Transport.Proxy. SOCKS proxies are handled by
// dialContext and are skipped here.
func (r routing) httpProxy(req *http.Request) (*url.URL, error) {
	u, err := r.proxies.ProxyFor(req.URL)
	if err != nil || u == nil {
		return nil, err
	}
	if isSOCKS(u) {
		return nil, nil
	}
	return u, nil
}

// socksDialer returns the SOCKS5 dialer for target, or nil when target is
// not routed through a SOCKS proxy.
func (r routing) socksDialer(target *url.URL) (proxy.ContextDialer, error) {
	u, err := r.proxies.ProxyFor(target)
	if err != nil || u == nil || !isSOCKS(u) {
		return nil, err
	}

	var auth *proxy.Auth
	if u.User != nil {
		pw, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pw}
	}
	d, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", u.Host)
	}
	return cd, nil
}

func isSOCKS(u *url.URL) bool {
	return strings.HasPrefix(strings.ToLower(u.Scheme), "socks5")
}

// dialContextFor returns a DialContext func for connections made to
// target. Connections go through the SOCKS proxy configured for target,
// or directly.
func (r routing) dialContextFor(target *url.URL, timeout time.Duration) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	direct := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}

	socks, err := r.socksDialer(target)
	if err != nil {
		return nil, err
	}
	if socks == nil {
		return direct.DialContext, nil
	}
	return socks.DialContext, nil
}

// newBaseTransport builds the HTTP/1.1+HTTP/2 transport for requests to
// baseURL.
func newBaseTransport(baseURL *url.URL, proxies config.Proxies, timeout time.Duration) (*http.Transport, error) {
	r := routing{proxies: proxies}
	dial, err := r.dialContextFor(baseURL, timeout)
	if err != nil {
		return nil, err
	}

	t := &http.Transport{
		Proxy:                 r.httpProxy,
		DialContext:           dial,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	// A custom DialContext disables Go's automatic h2 upgrade, so
	// HTTP/2 is configured explicitly. Pings detect dead connections
	// during long job waits.
	h2, err := http2.ConfigureTransports(t)
	if err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}
	h2.ReadIdleTimeout = 30 * time.Second
	h2.PingTimeout = 15 * time.Second

	return t, nil
}

// headerInjectingTransport adds fixed headers to every request that does
// not already carry them.
type headerInjectingTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		if clone.Header.Get(k) == "" {
			clone.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(clone)
}

// newCachingTransport wraps base with an in-memory HTTP cache. Cached
// responses are revalidated with ETag/Last-Modified and marked with the
// X-From-Cache header.
func newCachingTransport(base http.RoundTripper) *httpcache.Transport {
	t := httpcache.NewTransport(httpcache.NewMemoryCache())
	t.Transport = base
	t.MarkCachedResponses = true
	return t
}
