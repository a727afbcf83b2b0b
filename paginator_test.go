package tiktok

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestPool(t *testing.T, n int) *ProxyPool {
	t.Helper()
	addrs := make([]string, 0, n)
	for i := range n {
		addrs = append(addrs, fmt.Sprintf("http://proxy%d.example.com:8080", i))
	}
	jar, _ := cookiejar.New(nil)
	pool, err := NewProxyPool(addrs, jar, 0, 0)
	require.NoError(t, err)
	return pool
}

func newTestPaginator(transport Transport, pool *ProxyPool, limit int) *paginator {
	return &paginator{
		transport: transport,
		pool:      pool,
		policy:    fastPolicy,
		logger:    slog.New(slog.DiscardHandler),
		metrics:   newMetrics(nil),
		videoID:   testVideoID,
		pageSize:  defaultPageSize,
		limit:     limit,
	}
}

func TestPageState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "init", stateInit.String())
	assert.Equal(t, "fetching", stateFetching.String())
	assert.Equal(t, "accumulating", stateAccumulating.String())
	assert.Equal(t, "done", stateDone.String())
	assert.Equal(t, "failed", stateFailed.String())
	assert.Equal(t, "pageState(9)", pageState(9).String())
}

func TestPaginator_StepTransitions(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return(Page{Items: rawComments("a", 0, 2), Cursor: "2", HasMore: false}, nil)

	p := newTestPaginator(tr, newTestPool(t, 1), 0)
	ctx := context.Background()

	require.Equal(t, stateInit, p.state)
	p.step(ctx)
	assert.Equal(t, stateFetching, p.state)
	assert.NotNil(t, p.profile)
	p.step(ctx)
	assert.Equal(t, stateAccumulating, p.state)
	p.step(ctx)
	assert.Equal(t, stateDone, p.state)
	assert.Len(t, p.comments, 2)
	assert.Equal(t, "2", p.cursor)
}

func TestPaginator_RetriesSameCursorOnNextProfile(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)

	var profiles, cursors []string
	record := func(_ context.Context, req FetchRequest) {
		profiles = append(profiles, req.Profile.Name())
		cursors = append(cursors, req.Cursor)
	}
	gomock.InOrder(
		tr.EXPECT().Send(gomock.Any(), gomock.Any()).
			Do(record).Return(Page{Items: rawComments("a", 0, 1), Cursor: "c1", HasMore: true}, nil),
		tr.EXPECT().Send(gomock.Any(), gomock.Any()).
			Do(record).Return(Page{}, ErrTransient),
		tr.EXPECT().Send(gomock.Any(), gomock.Any()).
			Do(record).Return(Page{Items: rawComments("a", 1, 1), Cursor: "c2", HasMore: false}, nil),
	)

	res := newTestPaginator(tr, newTestPool(t, 2), 0).run(context.Background())

	require.True(t, res.Complete)
	assert.Len(t, res.Comments, 2)
	assert.Equal(t, []string{"", "c1", "c1"}, cursors)
	assert.NotEqual(t, profiles[1], profiles[2], "retry must rotate to another profile")
}

func TestPaginator_FatalErrorNotRetried(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return(Page{Items: rawComments("a", 0, 3), Cursor: "3", HasMore: true}, nil)
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return(Page{}, fmt.Errorf("%w: status 403", ErrAuthRequired)).Times(1)

	res := newTestPaginator(tr, newTestPool(t, 1), 0).run(context.Background())

	assert.False(t, res.Complete)
	assert.Len(t, res.Comments, 3)
	assert.ErrorIs(t, res.Err, ErrAuthRequired)
}

func TestPaginator_RetriesExhausted(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return(Page{}, ErrRateLimited).Times(fastPolicy.MaxRetries + 1)

	res := newTestPaginator(tr, newTestPool(t, 1), 0).run(context.Background())

	assert.False(t, res.Complete)
	assert.Empty(t, res.Comments)
	assert.ErrorIs(t, res.Err, ErrRateLimited)
	assert.ErrorContains(t, res.Err, "retries exhausted after 3 attempts")
}

func TestPaginator_EmptyPageWithStuckCursorStops(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return(Page{Items: rawComments("a", 0, 2), Cursor: "5", HasMore: true}, nil)
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return(Page{Cursor: "5", HasMore: true}, nil)

	res := newTestPaginator(tr, newTestPool(t, 1), 0).run(context.Background())

	assert.True(t, res.Complete)
	assert.Len(t, res.Comments, 2)
}

func TestPaginator_RepeatedPageWithStuckCursorStops(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return(Page{Items: rawComments("a", 0, 1), Cursor: "5", HasMore: true}, nil).
		Times(2)

	res := newTestPaginator(tr, newTestPool(t, 1), 3).run(context.Background())

	assert.True(t, res.Complete)
	assert.Equal(t, []string{"a0"}, cids(res.Comments))
	assert.Equal(t, 2, res.Pages)
}

func TestPaginator_StuckCursorStopsEvenWithNewComments(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	gomock.InOrder(
		tr.EXPECT().Send(gomock.Any(), gomock.Any()).
			Return(Page{Items: rawComments("a", 0, 2), Cursor: "5", HasMore: true}, nil),
		tr.EXPECT().Send(gomock.Any(), gomock.Any()).
			Return(Page{Items: rawComments("a", 2, 2), Cursor: "5", HasMore: true}, nil),
	)

	res := newTestPaginator(tr, newTestPool(t, 1), 0).run(context.Background())

	assert.True(t, res.Complete)
	assert.Equal(t, []string{"a0", "a1", "a2", "a3"}, cids(res.Comments))
}

func TestPaginator_LimitTruncatesMidPage(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return(Page{Items: rawComments("a", 0, 20), Cursor: "20", HasMore: true}, nil)

	res := newTestPaginator(tr, newTestPool(t, 1), 7).run(context.Background())

	assert.True(t, res.Complete)
	assert.Len(t, res.Comments, 7)
	assert.Equal(t, "a6", res.Comments[6].CID)
}

func TestPaginator_ReleasesProfile(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).Return(Page{}, ErrNotFound)

	pool := newTestPool(t, 1)
	newTestPaginator(tr, pool, 0).run(context.Background())

	select {
	case p := <-pool.free:
		pool.Release(p)
	default:
		t.Fatal("profile was not returned to the pool")
	}
}

func TestPaginator_CommentIDSelectsThread(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	var got FetchRequest
	tr.EXPECT().Send(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, req FetchRequest) { got = req }).
		Return(Page{Items: rawComments("r", 0, 1), Cursor: "1", HasMore: false}, nil)

	p := newTestPaginator(tr, newTestPool(t, 1), 0)
	p.commentID = "p0"
	res := p.run(context.Background())
	assert.True(t, res.Complete)
	assert.Equal(t, "p0", got.CommentID)
	assert.Equal(t, testVideoID, got.VideoID)
	assert.Equal(t, "replies", p.scopeName())
}
