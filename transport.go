package tiktok

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

//go:generate mockgen -source=transport.go -destination=transport_mock_test.go -package=tiktok Transport

// Transport sends a single page request. It never retries: a returned
// error is classified with IsRetryable and KindOf.
type Transport interface {
	Send(ctx context.Context, req FetchRequest) (Page, error)
}

// FetchRequest addresses one page of a comment list.
type FetchRequest struct {
	VideoID string
	// CommentID selects the reply thread of that comment. Empty means the
	// top-level comments of the video.
	CommentID string
	// Cursor is the opaque token of the previous page. Empty requests the
	// first page.
	Cursor   string
	PageSize int
	Profile  *ProxyProfile
}

// Page is one page of raw comment records.
type Page struct {
	Items   []map[string]any
	Cursor  string
	HasMore bool
}

// Send fetches one page from the comment list API.
func (s *Scraper) Send(ctx context.Context, req FetchRequest) (Page, error) {
	if req.VideoID == "" {
		return Page{}, fmt.Errorf("%w: empty video id", ErrMalformedInput)
	}
	if req.Profile == nil {
		return Page{}, fmt.Errorf("send: no proxy profile leased")
	}

	start := time.Now()
	rawURL := s.commentListURL(req)

	if s.signFunc != nil {
		// Mutex protects the single-threaded browser page.
		s.browserMu.Lock()
		signed, err := s.signFunc(rawURL)
		s.browserMu.Unlock()
		if err != nil {
			return Page{}, fmt.Errorf("sign comment url: %w", err)
		}
		rawURL = signed
	}

	if err := req.Profile.wait(ctx); err != nil {
		return Page{}, fmt.Errorf("wait for %s: %w", req.Profile.Name(), err)
	}

	resp, err := s.doRequest(ctx, req.Profile.client, http.MethodGet, rawURL)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, classifyNetError(ctx, fmt.Errorf("read comment list: %w", err))
	}
	if len(body) == 0 {
		// TikTok answers blocked clients with an empty 200.
		return Page{}, fmt.Errorf("%w: empty response body", ErrRateLimited)
	}

	raw, err := decodeCommentList(body)
	if err != nil {
		return Page{}, err
	}
	page, err := raw.toPage()
	if err != nil {
		return Page{}, err
	}

	s.perfLog("comment page",
		slog.String("video_id", req.VideoID),
		slog.String("comment_id", req.CommentID),
		slog.String("proxy", req.Profile.Name()),
		slog.Int("items", len(page.Items)),
		slog.Duration("total", time.Since(start)),
	)
	return page, nil
}

func (s *Scraper) commentListURL(req FetchRequest) string {
	cursor := req.Cursor
	if cursor == "" {
		cursor = "0"
	}
	q := url.Values{}
	q.Set("aid", "1988")
	q.Set("cursor", cursor)
	q.Set("count", strconv.Itoa(clampPageSize(req.PageSize)))

	path := "/api/comment/list/"
	if req.CommentID == "" {
		q.Set("aweme_id", req.VideoID)
	} else {
		path = "/api/comment/list/reply/"
		q.Set("item_id", req.VideoID)
		q.Set("comment_id", req.CommentID)
	}
	if s.msToken != "" {
		q.Set("msToken", s.msToken)
	}
	return s.baseURL + path + "?" + q.Encode()
}

// doRequest builds and executes an HTTP request with standard TikTok headers
// and classifies non-200 responses.
func (s *Scraper) doRequest(ctx context.Context, client *http.Client, method, urlStr string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://www.tiktok.com/")
	req.Header.Set("Origin", "https://www.tiktok.com")

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyNetError(ctx, fmt.Errorf("do request: %w", err))
	}

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	resp.Body.Close()

	code := resp.StatusCode
	switch {
	case code == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case code == http.StatusNotFound:
		return nil, ErrNotFound
	case code == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: status %d", ErrMalformedInput, code)
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuthRequired, code)
	case code == http.StatusRequestTimeout, code >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrTransient, code)
	}
	return nil, fmt.Errorf("%w: unexpected status %d", ErrProtocolDrift, code)
}

// classifyNetError marks connection failures and timeouts as transient.
// Cancellation of ctx is passed through unchanged.
func classifyNetError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", ErrTransient, err)
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}
