//go:build !unittest

package tiktok

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// InitBrowser launches a headless Chrome instance with stealth mode and
// turns on X-Bogus signing of comment API URLs. The browser goes through
// the first configured proxy, if any.
func (s *Scraper) InitBrowser() error {
	if err := s.launchBrowser(); err != nil {
		return err
	}
	s.signFunc = s.signURL
	return nil
}

func (s *Scraper) launchBrowser() error {
	l := launcher.New().Headless(true)
	if len(s.proxies) > 0 {
		l = l.Proxy(s.proxies[0])
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return fmt.Errorf("create stealth page: %w", err)
	}

	s.browser = browser
	s.page = page

	s.setupResourceBlocking()

	if err := s.page.Navigate(s.baseURL); err != nil {
		return fmt.Errorf("navigate to tiktok: %w", err)
	}
	if err := s.page.WaitStable(2 * time.Second); err != nil {
		return fmt.Errorf("wait for page stable: %w", err)
	}

	s.signingReady.Store(true)

	// The landing page issues ttwid and msToken; the comment API wants both.
	return s.syncCookiesFromBrowser()
}

func (s *Scraper) setupResourceBlocking() {
	router := s.browser.HijackRequests()
	blocked := []string{"*.css", "*.png", "*.jpg", "*.jpeg", "*.mp4", "*.woff*", "*.svg", "*analytics*"}
	for _, pattern := range blocked {
		router.MustAdd(pattern, func(ctx *rod.Hijack) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
	}
	go router.Run()
}

// signURL runs TikTok's frontierSign in the page and appends the returned
// parameters (X-Bogus, ...) to rawURL.
// Caller must hold browserMu.
func (s *Scraper) signURL(rawURL string) (string, error) {
	if s.page == nil {
		return "", ErrBrowserNotReady
	}

	if err := s.ensureSigningReady(); err != nil {
		return "", fmt.Errorf("%w: ensure signing ready: %v", ErrSigningFailed, err)
	}

	start := time.Now()
	page := s.page.Timeout(5 * time.Second)
	result, err := page.Eval(`(url) => {
		if (typeof window.byted_acrawler === 'undefined') {
			throw new Error('signing function not available');
		}
		const params = window.byted_acrawler.frontierSign(url);
		if (typeof params === 'string') {
			return params;
		}
		const u = new URL(url);
		for (const [k, v] of Object.entries(params)) {
			u.searchParams.set(k, v);
		}
		return u.toString();
	}`, rawURL)
	if err != nil {
		// Force a reload on the next call.
		s.signingReady.Store(false)
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	s.perfLog("signed comment url", slog.Duration("eval", time.Since(start)))
	return result.Value.String(), nil
}

// ensureSigningReady checks if the signing JS is available, reloading only if
// a previous call failed.
func (s *Scraper) ensureSigningReady() error {
	if s.signingReady.Load() {
		return nil
	}

	result, err := s.page.Timeout(3 * time.Second).Eval(`() => typeof window.byted_acrawler !== 'undefined'`)
	if err != nil || !result.Value.Bool() {
		if err := s.page.Navigate(s.baseURL); err != nil {
			return fmt.Errorf("reload for signing: %w", err)
		}
		if err := s.page.WaitStable(2 * time.Second); err != nil {
			return fmt.Errorf("wait after reload: %w", err)
		}
	}

	s.signingReady.Store(true)
	return nil
}

// syncCookiesFromBrowser copies browser cookies to the HTTP cookie jar.
func (s *Scraper) syncCookiesFromBrowser() error {
	cookies, err := s.page.Cookies([]string{s.baseURL})
	if err != nil {
		return fmt.Errorf("get browser cookies: %w", err)
	}

	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		httpCookies = append(httpCookies, &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: time.Unix(int64(c.Expires), 0),
		})
	}

	s.SetCookies(httpCookies)
	return nil
}

func (s *Scraper) closeBrowser() error {
	s.signFunc = nil
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			return fmt.Errorf("close page: %w", err)
		}
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			return fmt.Errorf("close browser: %w", err)
		}
		s.browser = nil
	}
	return nil
}
