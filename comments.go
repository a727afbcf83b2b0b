package tiktok

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// runConfig is the resolved configuration of one GetComments call.
type runConfig struct {
	videoID    string
	policy     RetryPolicy
	pageSize   int
	workers    int
	replyLimit int
	deadline   time.Time
}

func (s *Scraper) newPaginator(run *runConfig, commentID string, limit int) *paginator {
	return &paginator{
		transport: s.transport,
		pool:      s.pool,
		policy:    run.policy,
		logger:    s.logger,
		metrics:   s.metrics,
		videoID:   run.videoID,
		commentID: commentID,
		pageSize:  run.pageSize,
		limit:     limit,
		deadline:  run.deadline,
	}
}

// GetComments retrieves up to opts.Limit top-level comments of a video,
// with their reply threads when opts.IncludeReplies is set. video may be a
// numeric video id or any TikTok video URL accepted by ParseVideoID.
//
// Partial data is never discarded: retries running out, fatal upstream
// responses, cancellation and the run deadline all yield StatusPartial with
// whatever was collected. A malformed video id, an id the upstream reports
// as not found before any page was accepted, and upstream protocol drift end
// the run with StatusFailed, in which case the returned error is the
// *RunError also stored in Result.Error. After a cancel or deadline stop no
// reply threads are expanded and every Replies stays nil.
func (s *Scraper) GetComments(ctx context.Context, video string, opts Options) (Result, error) {
	start := time.Now()

	videoID, err := ParseVideoID(video)
	if err == nil && opts.Limit < 1 {
		err = fmt.Errorf("%w: limit must be at least 1, got %d", ErrMalformedInput, opts.Limit)
	}
	if err != nil {
		return s.finish(Result{
			VideoID:           video,
			Status:            StatusFailed,
			Comments:          []Comment{},
			IncompleteThreads: []string{},
			Error:             newRunError(video, err),
		}, start)
	}

	run := s.resolveRun(videoID, opts)
	s.logger.Info("fetching comments",
		slog.String("video_id", videoID),
		slog.Int("limit", opts.Limit),
		slog.Bool("replies", opts.IncludeReplies),
		slog.Int("proxies", s.pool.Size()),
	)

	top := s.newPaginator(run, "", opts.Limit).run(ctx)

	res := Result{
		VideoID:           videoID,
		Status:            StatusComplete,
		Comments:          top.Comments,
		SkippedCount:      top.Skipped,
		IncompleteThreads: []string{},
	}
	if res.Comments == nil {
		res.Comments = []Comment{}
	}

	if !top.Complete {
		if top.Pages == 0 && errors.Is(top.Err, ErrNotFound) {
			// Upstream rejected the id itself.
			top.Err = fmt.Errorf("%w: %w", ErrMalformedInput, top.Err)
		}
		res.Error = newRunError(videoID, top.Err)
		res.Status = StatusPartial
		if isTerminal(top.Err) {
			res.Status = StatusFailed
			return s.finish(res, start)
		}
		s.logger.Warn("comment retrieval incomplete, returning partial result",
			slog.String("video_id", videoID),
			slog.Int("collected", len(res.Comments)),
			slog.String("kind", string(res.Error.Kind)),
			slog.Any("error", top.Err),
		)
	}

	if opts.IncludeReplies && !isStopped(top.Err) {
		skipped, incomplete := s.expandReplies(ctx, run, res.Comments)
		res.SkippedCount += skipped
		if len(incomplete) > 0 {
			res.IncompleteThreads = incomplete
			res.Status = StatusPartial
			if res.Error == nil {
				res.Error = newRunError(videoID,
					fmt.Errorf("%w: %d of %d threads", ErrReplyThread, len(incomplete), len(res.Comments)))
			}
			s.logger.Warn("reply threads incomplete",
				slog.String("video_id", videoID),
				slog.Int("threads", len(incomplete)),
				slog.Any("cids", incomplete),
			)
		}
	}

	return s.finish(res, start)
}

func (s *Scraper) resolveRun(videoID string, opts Options) *runConfig {
	run := &runConfig{
		videoID:    videoID,
		policy:     s.retry,
		pageSize:   s.pageSize,
		workers:    s.workers,
		replyLimit: max(opts.ReplyLimit, 0),
	}
	if opts.Retry != nil {
		run.policy = *opts.Retry
	}
	if opts.PageSize > 0 {
		run.pageSize = clampPageSize(opts.PageSize)
	}
	if opts.Workers > 0 {
		run.workers = opts.Workers
	}
	if opts.Deadline > 0 {
		run.deadline = time.Now().Add(opts.Deadline)
	}
	return run
}

// finish records the run outcome and returns the error the caller sees.
func (s *Scraper) finish(res Result, start time.Time) (Result, error) {
	s.metrics.runs.WithLabelValues(string(res.Status)).Inc()
	s.logger.Info("finished fetching comments",
		slog.String("video_id", res.VideoID),
		slog.String("status", string(res.Status)),
		slog.Int("comments", len(res.Comments)),
		slog.Int("replies", res.ReplyCount()),
		slog.Int("skipped", res.SkippedCount),
		slog.Duration("elapsed", time.Since(start)),
	)
	if res.Status == StatusFailed {
		return res, res.Error
	}
	return res, nil
}

// isStopped reports whether the run was cancelled or ran out of time.
func isStopped(err error) bool {
	return errors.Is(err, ErrRunCancelled) || errors.Is(err, ErrRunTimeout)
}

// isTerminal reports whether a top-level failure aborts the run instead of
// degrading it.
func isTerminal(err error) bool {
	return errors.Is(err, ErrMalformedInput) || errors.Is(err, ErrProtocolDrift)
}
