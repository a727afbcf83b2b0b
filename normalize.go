package tiktok

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// normalizeComment maps one raw comment record to a Comment. It fails with
// ErrCommentMalformed when a required field (cid, aweme_id) is missing;
// every other field falls back to its zero value.
func normalizeComment(raw map[string]any) (Comment, error) {
	if raw == nil {
		return Comment{}, fmt.Errorf("%w: null record", ErrCommentMalformed)
	}
	cid := firstString(raw, "cid", "id")
	awemeID := firstString(raw, "aweme_id", "item_id")
	switch {
	case cid == "":
		return Comment{}, fmt.Errorf("%w: missing cid", ErrCommentMalformed)
	case awemeID == "":
		return Comment{}, fmt.Errorf("%w: cid %s missing aweme_id", ErrCommentMalformed, cid)
	}

	user := firstMap(raw, "user", "user_info")
	return Comment{
		CID:               cid,
		AwemeID:           awemeID,
		Text:              collapseWhitespace(firstString(raw, "text")),
		CreateTime:        firstInt64(raw, "create_time"),
		DiggCount:         nonNegative(firstInt64(raw, "digg_count")),
		ReplyCommentTotal: nonNegative(firstInt64(raw, "reply_comment_total", "reply_count")),
		AuthorPin:         firstBool(raw, "author_pin"),
		CommentLanguage:   firstString(raw, "comment_language", "lang"),
		Region:            firstNonEmpty(firstString(raw, "region"), firstString(user, "region", "country")),
		TextExtra:         normalizeTextExtra(raw["text_extra"]),
		User:              normalizeUser(user),
		ShareInfo:         normalizeShareInfo(firstMap(raw, "share_info")),
	}, nil
}

func normalizeUser(m map[string]any) User {
	return User{
		Nickname:  firstString(m, "nickname", "name"),
		UniqueID:  firstString(m, "unique_id", "username", "id"),
		Signature: firstString(m, "signature", "bio"),
		InsID:     firstString(m, "ins_id", "instagram_id"),
	}
}

func normalizeShareInfo(m map[string]any) ShareInfo {
	return ShareInfo{
		Desc: firstString(m, "desc", "description"),
		URL:  firstString(m, "url"),
	}
}

func normalizeTextExtra(v any) []TextExtra {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	out := make([]TextExtra, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, TextExtra{
			Type:        int(firstInt64(m, "type")),
			HashtagName: firstString(m, "hashtag_name"),
			UserID:      firstString(m, "user_id"),
			Start:       int(firstInt64(m, "start")),
			End:         int(firstInt64(m, "end")),
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Field helpers. Lookups on a nil map are safe and return zero values.

func firstMap(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if v, ok := m[k].(map[string]any); ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := toString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstInt64(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		if n := toInt64(m[k]); n != 0 {
			return n
		}
	}
	return 0
}

func firstBool(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := m[k].(type) {
		case bool:
			if v {
				return true
			}
		case json.Number, float64, string:
			if toInt64(v) != 0 || v == "true" {
				return true
			}
		}
	}
	return false
}

func toString(v any) string {
	switch vv := v.(type) {
	case string:
		return strings.TrimSpace(vv)
	case json.Number:
		return vv.String()
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(vv, 10)
	case int:
		return strconv.Itoa(vv)
	}
	return ""
}

func toInt64(v any) int64 {
	switch vv := v.(type) {
	case json.Number:
		if n, err := vv.Int64(); err == nil {
			return n
		}
		if f, err := vv.Float64(); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return int64(f)
		}
	case float64:
		return int64(vv)
	case int64:
		return vv
	case int:
		return int64(vv)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(vv), 10, 64)
		return n
	}
	return 0
}

func nonNegative(n int64) int64 {
	return max(n, 0)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
