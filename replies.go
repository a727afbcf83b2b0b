package tiktok

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// expandReplies fills Replies for every comment that reports replies. Each
// thread runs its own paginator; at most workers threads run at once and no
// more than the proxy pool can serve. A failed thread keeps whatever replies
// it collected and is reported in the returned cid list, in comment order.
func (s *Scraper) expandReplies(ctx context.Context, run *runConfig, comments []Comment) (skipped int, incomplete []string) {
	results := make([]*scopeResult, len(comments))

	var eg errgroup.Group
	eg.SetLimit(max(1, min(run.workers, s.pool.Size())))
	for i := range comments {
		if comments[i].ReplyCommentTotal <= 0 {
			continue
		}
		parent := comments[i]
		eg.Go(func() error {
			p := s.newPaginator(run, parent.CID, run.replyLimit)
			res := p.run(ctx)
			results[i] = &res
			return nil
		})
	}
	// Tasks never return errors; failures live in each scopeResult.
	_ = eg.Wait()

	for i, res := range results {
		if res == nil {
			continue
		}
		replies := res.Comments
		if replies == nil {
			replies = []Comment{}
		}
		comments[i].Replies = replies
		skipped += res.Skipped
		if !res.Complete {
			comments[i].RepliesIncomplete = true
			incomplete = append(incomplete, comments[i].CID)
			s.logger.Debug("reply thread incomplete",
				slog.String("video_id", run.videoID),
				slog.String("cid", comments[i].CID),
				slog.Int("collected", len(replies)),
				slog.String("kind", string(KindOf(res.Err))),
				slog.Any("error", res.Err),
			)
		}
	}
	return skipped, incomplete
}
