package tiktok

import "github.com/ecodeclub/ekit/set"

// threadScope is the dedup namespace of one comment list: the top-level
// list of a video, or the replies of one parent comment.
type threadScope struct {
	seen *set.MapSet[string]
}

func newThreadScope(sizeHint int) *threadScope {
	return &threadScope{seen: set.NewMapSet[string](max(sizeHint, 8))}
}

// admit records c's cid and reports whether c is the first comment with
// that cid in the scope. Later duplicates are discarded, never merged.
func (s *threadScope) admit(c Comment) bool {
	if s.seen.Exist(c.CID) {
		return false
	}
	s.seen.Add(c.CID)
	return true
}
