package tiktok

import "time"

// Comment is a normalized TikTok comment. Replies is nil unless reply
// expansion ran for this comment; an expanded thread with no surviving
// replies is an empty, non-nil slice.
type Comment struct {
	CID               string      `json:"cid"`
	AwemeID           string      `json:"aweme_id"`
	Text              string      `json:"text"`
	CreateTime        int64       `json:"create_time"`
	DiggCount         int64       `json:"digg_count"`
	ReplyCommentTotal int64       `json:"reply_comment_total"`
	AuthorPin         bool        `json:"author_pin"`
	CommentLanguage   string      `json:"comment_language"`
	Region            string      `json:"region"`
	TextExtra         []TextExtra `json:"text_extra,omitempty"`
	User              User        `json:"user"`
	ShareInfo         ShareInfo   `json:"share_info"`
	Replies           []Comment   `json:"replies,omitzero"`
	RepliesIncomplete bool        `json:"replies_incomplete,omitempty"`
}

// CreatedAt returns CreateTime as a time.Time.
func (c Comment) CreatedAt() time.Time {
	return time.Unix(c.CreateTime, 0)
}

// User is the comment author as embedded in the comment record.
type User struct {
	Nickname  string `json:"nickname"`
	UniqueID  string `json:"unique_id"`
	Signature string `json:"signature"`
	InsID     string `json:"ins_id"`
}

// ShareInfo is the share card attached to a comment.
type ShareInfo struct {
	Desc string `json:"desc"`
	URL  string `json:"url"`
}

// TextExtra marks a hashtag or mention inside the comment text.
type TextExtra struct {
	Type        int    `json:"type"`
	HashtagName string `json:"hashtag_name,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
}

// Status is the outcome of a retrieval run.
type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
	StatusFailed   Status = "failed"
)

// Options controls a single GetComments run.
type Options struct {
	// Limit caps the number of top-level comments. Must be at least 1.
	Limit int
	// IncludeReplies expands the reply thread of every comment that
	// reports replies.
	IncludeReplies bool
	// ReplyLimit caps each reply thread. Zero fetches all replies.
	ReplyLimit int
	// PageSize is the requested page size, clamped to the upstream range.
	PageSize int
	// Workers bounds concurrent reply expansion. It never exceeds the
	// proxy pool size.
	Workers int
	// Deadline bounds the whole run. Zero disables it.
	Deadline time.Duration
	// Retry overrides the scraper's retry policy for this run.
	Retry *RetryPolicy
}

// Result is the assembled output of a run.
type Result struct {
	VideoID           string    `json:"video_id"`
	Status            Status    `json:"status"`
	Comments          []Comment `json:"comments"`
	SkippedCount      int       `json:"skipped_count"`
	IncompleteThreads []string  `json:"incomplete_threads"`
	// Error explains a partial or failed status.
	Error *RunError `json:"error,omitempty"`
}

// ReplyCount returns the number of replies collected across all threads.
func (r Result) ReplyCount() int {
	n := 0
	for _, c := range r.Comments {
		n += len(c.Replies)
	}
	return n
}
