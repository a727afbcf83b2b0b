package tiktok

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds everything needed to build a Scraper. It is read once at
// startup and passed down; the library never reads the environment itself
// outside ConfigFromEnv.
type Config struct {
	BaseURL        string
	Proxies        []string
	RequestTimeout time.Duration
	RequestDelay   time.Duration
	Retry          RetryPolicy
	Workers        int
	PageSize       int
	UserAgent      string
	CookiesFile    string
}

// ConfigFromEnv reads TIKTOK_* variables, falling back to the library
// defaults for anything unset.
func ConfigFromEnv() Config {
	return Config{
		BaseURL:        env.Str("TIKTOK_BASE_URL", "https://www.tiktok.com"),
		Proxies:        nonEmpty(env.List("TIKTOK_PROXIES", "")),
		RequestTimeout: env.Duration("TIKTOK_REQUEST_TIMEOUT", 15*time.Second),
		RequestDelay:   env.Duration("TIKTOK_REQUEST_DELAY", 750*time.Millisecond),
		Retry: RetryPolicy{
			MaxRetries: env.Int("TIKTOK_MAX_RETRIES", DefaultRetryPolicy.MaxRetries),
			BaseDelay:  env.Duration("TIKTOK_BACKOFF_BASE", DefaultRetryPolicy.BaseDelay),
			MaxDelay:   env.Duration("TIKTOK_BACKOFF_MAX", DefaultRetryPolicy.MaxDelay),
			Multiplier: DefaultRetryPolicy.Multiplier,
			Jitter:     DefaultRetryPolicy.Jitter,
		},
		Workers:     env.Int("TIKTOK_WORKERS", defaultWorkers),
		PageSize:    env.Int("TIKTOK_PAGE_SIZE", defaultPageSize),
		UserAgent:   env.Str("TIKTOK_USER_AGENT", defaultUserAgent),
		CookiesFile: env.Str("TIKTOK_COOKIES", ""),
	}
}

// NewFromConfig builds a Scraper from cfg. logger and reg may be nil.
func NewFromConfig(cfg Config, logger *slog.Logger, reg prometheus.Registerer) (*Scraper, error) {
	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("config: max retries must not be negative, got %d", cfg.Retry.MaxRetries)
	}

	s := New().
		WithTimeout(cfg.RequestTimeout).
		WithRequestDelay(cfg.RequestDelay).
		WithRetryPolicy(cfg.Retry).
		WithWorkers(cfg.Workers).
		WithPageSize(cfg.PageSize).
		WithUserAgent(cfg.UserAgent).
		WithLogger(logger)
	if reg != nil {
		s = s.WithRegisterer(reg)
	}
	if cfg.BaseURL != "" {
		s.baseURL = cfg.BaseURL
	}

	if err := s.SetProxies(cfg.Proxies); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.CookiesFile != "" {
		if err := s.LoadCookies(cfg.CookiesFile); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return s, nil
}

func nonEmpty(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
