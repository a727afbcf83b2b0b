package tiktok

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newMockedScraper(t *testing.T, tr Transport, proxies, workers int) *Scraper {
	t.Helper()
	s := New().WithRetryPolicy(fastPolicy).WithWorkers(workers).WithLogger(slog.New(slog.DiscardHandler))
	s.pool = newTestPool(t, proxies)
	s.transport = tr
	return s
}

func TestExpandReplies_BoundedByWorkersAndPool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		proxies, workers, wantMax int
	}{
		{1, 4, 1},
		{4, 2, 2},
		{3, 8, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("proxies=%d/workers=%d", tt.proxies, tt.workers), func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			tr := NewMockTransport(ctrl)

			var inFlight, peak atomic.Int32
			tr.EXPECT().Send(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, req FetchRequest) (Page, error) {
					n := inFlight.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					inFlight.Add(-1)
					return Page{Items: []map[string]any{rawComment(req.CommentID+"r", 0)}, Cursor: "1"}, nil
				}).Times(10)

			s := newMockedScraper(t, tr, tt.proxies, tt.workers)
			comments := mustNormalize(t, func() []map[string]any {
				out := make([]map[string]any, 0, 10)
				for i := range 10 {
					out = append(out, rawComment(fmt.Sprintf("p%d", i), 1))
				}
				return out
			}())

			run := &runConfig{videoID: testVideoID, policy: fastPolicy, pageSize: defaultPageSize, workers: tt.workers}
			skipped, incomplete := s.expandReplies(context.Background(), run, comments)

			assert.Zero(t, skipped)
			assert.Empty(t, incomplete)
			assert.LessOrEqual(t, int(peak.Load()), tt.wantMax)
			for i, c := range comments {
				require.Len(t, c.Replies, 1)
				assert.Equal(t, fmt.Sprintf("p%dr", i), c.Replies[0].CID, "replies stay with their parent")
			}
		})
	}
}

func TestExpandReplies_SkipsCommentsWithoutReplies(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)

	s := newMockedScraper(t, tr, 1, 1)
	comments := mustNormalize(t, rawComments("a", 0, 3))
	run := &runConfig{videoID: testVideoID, policy: fastPolicy, workers: 1}
	_, incomplete := s.expandReplies(context.Background(), run, comments)

	assert.Empty(t, incomplete)
	for _, c := range comments {
		assert.Nil(t, c.Replies)
	}
}

func TestExpandReplies_CountsSkippedReplies(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)

	bad := rawComment("r1", 0)
	delete(bad, "aweme_id")
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return(Page{Items: []map[string]any{rawComment("r0", 0), bad}, Cursor: "2"}, nil)

	s := newMockedScraper(t, tr, 1, 1)
	comments := mustNormalize(t, []map[string]any{rawComment("p", 2)})
	run := &runConfig{videoID: testVideoID, policy: fastPolicy, workers: 1}
	skipped, _ := s.expandReplies(context.Background(), run, comments)

	assert.Equal(t, 1, skipped)
	assert.Len(t, comments[0].Replies, 1)
}
