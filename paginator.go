package tiktok

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// pageState is the paginator's position in its fetch loop.
type pageState int

const (
	stateInit pageState = iota
	stateFetching
	stateAccumulating
	stateDone
	stateFailed
)

func (s pageState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateFetching:
		return "fetching"
	case stateAccumulating:
		return "accumulating"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	}
	return fmt.Sprintf("pageState(%d)", int(s))
}

// scopeResult is what one paginator hands back. Complete is false when the
// scope ended in stateFailed; Comments still holds everything accumulated.
type scopeResult struct {
	Comments []Comment
	Skipped  int
	// Pages counts the pages accepted from upstream.
	Pages    int
	Complete bool
	Err      error
}

// paginator walks one comment list (top-level or one reply thread) page by
// page. Pages are strictly sequential: each request needs the cursor of the
// previous response.
type paginator struct {
	transport Transport
	pool      *ProxyPool
	policy    RetryPolicy
	logger    *slog.Logger
	metrics   *metrics

	videoID   string
	commentID string
	pageSize  int
	// limit of accepted comments; zero is unbounded.
	limit    int
	deadline time.Time

	state    pageState
	cursor   string
	page     Page
	attempt  int
	profile  *ProxyProfile
	scope    *threadScope
	comments []Comment
	skipped  int
	pages    int
	err      error
}

func (p *paginator) scopeName() string {
	if p.commentID == "" {
		return "comments"
	}
	return "replies"
}

// run drives the state machine to a terminal state.
func (p *paginator) run(ctx context.Context) scopeResult {
	defer func() {
		p.pool.Release(p.profile)
		p.profile = nil
	}()

	for p.state != stateDone && p.state != stateFailed {
		p.step(ctx)
	}

	if p.limit > 0 && len(p.comments) > p.limit {
		p.comments = p.comments[:p.limit]
	}
	return scopeResult{
		Comments: p.comments,
		Skipped:  p.skipped,
		Pages:    p.pages,
		Complete: p.state == stateDone,
		Err:      p.err,
	}
}

// step performs exactly one transition.
func (p *paginator) step(ctx context.Context) {
	switch p.state {
	case stateInit:
		p.scope = newThreadScope(p.limit)
		p.cursor = ""
		profile, err := p.pool.Acquire(ctx)
		if err != nil {
			p.fail(stopCause(err))
			return
		}
		p.profile = profile
		p.state = stateFetching
	case stateFetching:
		p.fetch(ctx)
	case stateAccumulating:
		p.accumulate()
	}
}

func (p *paginator) fetch(ctx context.Context) {
	if err := p.checkBoundary(ctx); err != nil {
		p.fail(err)
		return
	}

	// Once issued, a request runs to completion even if ctx is cancelled;
	// the per-request timeout still bounds it.
	page, err := p.transport.Send(context.WithoutCancel(ctx), FetchRequest{
		VideoID:   p.videoID,
		CommentID: p.commentID,
		Cursor:    p.cursor,
		PageSize:  p.pageSize,
		Profile:   p.profile,
	})
	if err == nil {
		p.page = page
		p.pages++
		p.attempt = 0
		p.state = stateAccumulating
		p.metrics.pages.WithLabelValues(p.scopeName()).Inc()
		return
	}

	p.attempt++
	decision := p.policy.Next(p.attempt, err)
	if !decision.Retry {
		if IsRetryable(err) {
			err = fmt.Errorf("retries exhausted after %d attempts: %w", p.attempt, err)
		}
		p.fail(err)
		return
	}

	p.metrics.retries.WithLabelValues(string(KindOf(err))).Inc()
	p.logger.Debug("retrying page",
		slog.String("video_id", p.videoID),
		slog.String("comment_id", p.commentID),
		slog.String("proxy", p.profile.Name()),
		slog.Int("attempt", p.attempt),
		slog.Duration("wait", decision.Delay),
		slog.Any("error", err),
	)

	if decision.Rotate {
		p.pool.Release(p.profile)
		p.profile = nil
		profile, aerr := p.pool.Acquire(ctx)
		if aerr != nil {
			p.fail(stopCause(aerr))
			return
		}
		p.profile = profile
	}

	if werr := p.wait(ctx, p.policy.withJitter(decision.Delay)); werr != nil {
		p.fail(werr)
	}
}

// accumulate folds the current page into the result and picks the next
// state. Items keep upstream order; duplicates within the scope are dropped.
func (p *paginator) accumulate() {
	prevCursor := p.cursor
	added := 0
	for _, raw := range p.page.Items {
		c, err := normalizeComment(raw)
		if err != nil {
			p.skipped++
			p.metrics.skipped.Inc()
			p.logger.Debug("skipping comment record",
				slog.String("video_id", p.videoID),
				slog.String("comment_id", p.commentID),
				slog.Any("error", err),
			)
			continue
		}
		if !p.scope.admit(c) {
			p.metrics.duplicates.Inc()
			continue
		}
		p.comments = append(p.comments, c)
		added++
	}
	p.cursor = p.page.Cursor

	switch {
	case !p.page.HasMore:
		p.state = stateDone
	case p.limit > 0 && len(p.comments) >= p.limit:
		p.state = stateDone
	case p.cursor == prevCursor:
		// Requesting the same cursor again would return the same page.
		p.logger.Warn("upstream reports more comments but cursor did not advance",
			slog.String("video_id", p.videoID),
			slog.String("comment_id", p.commentID),
			slog.String("cursor", p.cursor),
			slog.Int("new_comments", added),
		)
		p.state = stateDone
	default:
		p.state = stateFetching
	}
	p.page = Page{}
}

// checkBoundary reports whether the run must stop before issuing another
// request.
func (p *paginator) checkBoundary(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return stopCause(err)
	}
	if !p.deadline.IsZero() && !time.Now().Before(p.deadline) {
		return ErrRunTimeout
	}
	return nil
}

// wait sleeps for d unless ctx is done or the run deadline passes first.
func (p *paginator) wait(ctx context.Context, d time.Duration) error {
	var deadline <-chan time.Time
	if !p.deadline.IsZero() {
		remaining := time.Until(p.deadline)
		if remaining <= 0 {
			return ErrRunTimeout
		}
		if remaining < d {
			t := time.NewTimer(remaining)
			defer t.Stop()
			deadline = t.C
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-deadline:
		return ErrRunTimeout
	case <-ctx.Done():
		return stopCause(ctx.Err())
	}
}

func (p *paginator) fail(err error) {
	p.err = err
	p.state = stateFailed
}

// stopCause maps a context error to the run-level stop reason.
func stopCause(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrRunTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrRunCancelled, err)
}
