package tiktok

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var (
	videoIDPattern      = regexp.MustCompile(`\d{6,}`)
	videoSegmentPattern = regexp.MustCompile(`^(\d{6,})(?:\.html)?$`)
)

// videoPathMarkers are the path segments that precede a video id.
var videoPathMarkers = map[string]bool{
	"video": true,
	"photo": true,
	"v":     true,
	"v2":    true,
	"embed": true,
}

// ParseVideoID extracts the numeric video id from a bare id or a TikTok
// video URL:
//
//	7211250685902359850
//	https://www.tiktok.com/@user/video/7211250685902359850
//	https://www.tiktok.com/embed/v2/7211250685902359850
//	https://m.tiktok.com/v/share?aweme_id=7211250685902359850
//
// Short links (vm.tiktok.com, /t/) carry no id; use ResolveVideoID.
func ParseVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: empty input", ErrMalformedInput)
	}
	if isNumericID(input) {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q is neither a video id nor a url", ErrMalformedInput, input)
	}
	if !isTikTokHost(u.Hostname()) {
		return "", fmt.Errorf("%w: %q is not a tiktok url", ErrMalformedInput, input)
	}

	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	for i := 1; i < len(segments); i++ {
		if !videoPathMarkers[strings.ToLower(segments[i-1])] {
			continue
		}
		if m := videoSegmentPattern.FindStringSubmatch(segments[i]); m != nil {
			return m[1], nil
		}
	}

	q := u.Query()
	for _, key := range []string{"aweme_id", "video_id", "item_id"} {
		if v := q.Get(key); isNumericID(v) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: no video id in %q", ErrMalformedInput, input)
}

// ResolveVideoID is ParseVideoID that also follows short-link redirects to
// the canonical video URL.
func (s *Scraper) ResolveVideoID(ctx context.Context, input string) (string, error) {
	id, err := ParseVideoID(input)
	if err == nil || !isShortLink(input) {
		return id, err
	}

	profile, err := s.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", input, err)
	}
	defer s.pool.Release(profile)

	if err := profile.wait(ctx); err != nil {
		return "", fmt.Errorf("resolve %q: %w", input, err)
	}
	resp, err := s.doRequest(ctx, profile.client, http.MethodGet, input)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%w: short link %q not found", ErrMalformedInput, input)
		}
		return "", fmt.Errorf("resolve %q: %w", input, err)
	}
	defer resp.Body.Close()

	return ParseVideoID(resp.Request.URL.String())
}

func isShortLink(input string) bool {
	u, err := url.Parse(strings.TrimSpace(input))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "vm.tiktok.com" || host == "vt.tiktok.com" ||
		(isTikTokHost(host) && strings.HasPrefix(u.Path, "/t/"))
}

func isTikTokHost(host string) bool {
	host = strings.ToLower(host)
	return host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com")
}

func isNumericID(s string) bool {
	return len(s) >= 6 && videoIDPattern.FindString(s) == s
}
