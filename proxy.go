package tiktok

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

// ProxyProfile is one egress point: an HTTP client bound to a proxy (or a
// direct connection) with its own request pacing.
type ProxyProfile struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
}

// Name identifies the profile in logs. Proxy credentials are stripped.
func (p *ProxyProfile) Name() string {
	return p.name
}

// wait blocks until the profile's pacing allows another request.
func (p *ProxyProfile) wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// ProxyPool hands out profiles with checkout/return semantics. A leased
// profile is held by exactly one caller until it is released. Profiles are
// handed out in FIFO order, so releasing and re-acquiring rotates to the
// next free profile.
type ProxyPool struct {
	profiles []*ProxyProfile
	free     chan *ProxyProfile
}

// NewProxyPool builds one profile per proxy address. An empty list yields a
// single direct profile.
func NewProxyPool(addrs []string, jar http.CookieJar, timeout, delay time.Duration) (*ProxyPool, error) {
	if len(addrs) == 0 {
		addrs = []string{""}
	}
	pool := &ProxyPool{free: make(chan *ProxyProfile, len(addrs))}
	for _, addr := range addrs {
		transport, name, err := newProxyTransport(addr)
		if err != nil {
			return nil, err
		}
		p := &ProxyProfile{
			name: name,
			client: &http.Client{
				Jar:       jar,
				Timeout:   timeout,
				Transport: transport,
			},
			limiter: rate.NewLimiter(delayLimit(delay), 1),
		}
		pool.profiles = append(pool.profiles, p)
		pool.free <- p
	}
	return pool, nil
}

// Size returns the number of profiles in the pool.
func (p *ProxyPool) Size() int {
	return len(p.profiles)
}

// Acquire checks out the next free profile, blocking until one is released
// or ctx is done.
func (p *ProxyPool) Acquire(ctx context.Context) (*ProxyProfile, error) {
	select {
	case pr := <-p.free:
		return pr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a leased profile to the back of the queue.
func (p *ProxyPool) Release(pr *ProxyProfile) {
	if pr == nil {
		return
	}
	p.free <- pr
}

func (p *ProxyPool) setDelay(d time.Duration) {
	for _, pr := range p.profiles {
		pr.limiter.SetLimit(delayLimit(d))
	}
}

func (p *ProxyPool) setTimeout(d time.Duration) {
	for _, pr := range p.profiles {
		pr.client.Timeout = d
	}
}

func delayLimit(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// defaultTransport returns an http.Transport optimized for scraping:
// connection pooling, keep-alive, and TLS handshake caching.
func defaultTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}

// newProxyTransport configures an HTTP/HTTPS or SOCKS5 proxy on top of the
// default transport. An empty address means a direct connection.
func newProxyTransport(addr string) (*http.Transport, string, error) {
	base := defaultTransport()
	if addr == "" {
		return base, "direct", nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, "", fmt.Errorf("parse proxy url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		base.Proxy = http.ProxyURL(u)
	case "socks5":
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, "", fmt.Errorf("socks5 proxy: %w", err)
		}
		dc, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, "", fmt.Errorf("socks5: context dialer not supported")
		}
		base.DialContext = dc.DialContext
	default:
		return nil, "", fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}

	return base, u.Scheme + "://" + u.Host, nil
}
