package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const (
	defaultPageSize = 20
	maxPageSize     = 50
	defaultWorkers  = 4
)

var tiktokURL, _ = url.Parse("https://www.tiktok.com")

// Scraper retrieves comment threads over plain HTTP. A headless browser is
// only launched when URL signing is enabled with InitBrowser.
type Scraper struct {
	jar       http.CookieJar
	pool      *ProxyPool
	proxies   []string
	userAgent string
	baseURL   string // defaults to "https://www.tiktok.com"

	timeout      time.Duration
	requestDelay time.Duration
	retry        RetryPolicy
	workers      int
	pageSize     int

	// transport sends one page request. Defaults to the scraper itself;
	// replaceable for testing.
	transport Transport

	// Browser for URL signing only.
	browser      *rod.Browser
	page         *rod.Page
	browserMu    sync.Mutex
	signingReady atomic.Bool

	// signFunc signs a raw URL via browser JS. Nil disables signing.
	signFunc func(rawURL string) (string, error)

	// Session token picked up from cookies.
	msToken string

	logger  *slog.Logger
	metrics *metrics
}

// New creates a Scraper with a direct connection and sensible defaults.
func New() *Scraper {
	jar, _ := cookiejar.New(nil)
	s := &Scraper{
		jar:          jar,
		baseURL:      "https://www.tiktok.com",
		userAgent:    defaultUserAgent,
		timeout:      15 * time.Second,
		requestDelay: 750 * time.Millisecond,
		retry:        DefaultRetryPolicy,
		workers:      defaultWorkers,
		pageSize:     defaultPageSize,
		logger:       slog.Default(),
		metrics:      newMetrics(nil),
	}
	// A direct pool cannot fail to build.
	s.pool, _ = NewProxyPool(nil, s.jar, s.timeout, s.requestDelay)
	s.transport = s
	return s
}

// WithRequestDelay sets the minimum delay between two requests on the same
// proxy profile.
func (s *Scraper) WithRequestDelay(d time.Duration) *Scraper {
	s.requestDelay = d
	s.pool.setDelay(d)
	return s
}

// WithTimeout sets the per-request timeout.
func (s *Scraper) WithTimeout(d time.Duration) *Scraper {
	s.timeout = d
	s.pool.setTimeout(d)
	return s
}

// WithRetryPolicy sets the default retry policy for page fetches.
func (s *Scraper) WithRetryPolicy(p RetryPolicy) *Scraper {
	s.retry = p
	return s
}

// WithWorkers sets the default reply-expansion concurrency.
func (s *Scraper) WithWorkers(n int) *Scraper {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithPageSize sets the default page size.
func (s *Scraper) WithPageSize(n int) *Scraper {
	s.pageSize = clampPageSize(n)
	return s
}

// WithUserAgent overrides the User-Agent header.
func (s *Scraper) WithUserAgent(ua string) *Scraper {
	if ua != "" {
		s.userAgent = ua
	}
	return s
}

// WithLogger sets the logger used for run progress.
func (s *Scraper) WithLogger(l *slog.Logger) *Scraper {
	if l != nil {
		s.logger = l
	}
	return s
}

// WithRegisterer registers the engine counters with reg.
func (s *Scraper) WithRegisterer(reg prometheus.Registerer) *Scraper {
	s.metrics = newMetrics(reg)
	return s
}

// SetProxies replaces the proxy pool. Each address is an HTTP/HTTPS or
// SOCKS5 proxy URL; an empty list restores a single direct profile. It must
// not be called while a run is in progress.
func (s *Scraper) SetProxies(addrs []string) error {
	pool, err := NewProxyPool(addrs, s.jar, s.timeout, s.requestDelay)
	if err != nil {
		return err
	}
	s.pool = pool
	s.proxies = addrs
	return nil
}

// SetProxy configures a single proxy. Connection pooling and keep-alive
// settings are preserved.
func (s *Scraper) SetProxy(proxyAddr string) error {
	if proxyAddr == "" {
		return s.SetProxies(nil)
	}
	return s.SetProxies([]string{proxyAddr})
}

// Proxies returns the configured proxy addresses.
func (s *Scraper) Proxies() []string {
	return s.proxies
}

// GetCookies returns the current session cookies for tiktok.com.
func (s *Scraper) GetCookies() []*http.Cookie {
	return s.jar.Cookies(tiktokURL)
}

// SetCookies sets session cookies and extracts the msToken.
func (s *Scraper) SetCookies(cookies []*http.Cookie) {
	s.jar.SetCookies(tiktokURL, cookies)
	for _, c := range cookies {
		if c.Name == "msToken" {
			s.msToken = c.Value
		}
	}
}

// SaveCookies writes session cookies to a JSON file.
func (s *Scraper) SaveCookies(path string) error {
	data, err := json.Marshal(s.GetCookies())
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LoadCookies reads anonymous session cookies (ttwid, msToken) from a JSON
// file and sets them on every proxy profile.
func (s *Scraper) LoadCookies(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read cookies file: %w", err)
	}
	var cookies []*http.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("unmarshal cookies: %w", err)
	}
	s.SetCookies(cookies)
	return nil
}

// Close releases all resources including the headless browser if running.
func (s *Scraper) Close() error {
	return s.closeBrowser()
}

// perfLog records timing details at debug level.
func (s *Scraper) perfLog(msg string, attrs ...slog.Attr) {
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

func clampPageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	return min(n, maxPageSize)
}
