package tiktok

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Comment list API envelope. The same shape serves /api/comment/list/ and
// /api/comment/list/reply/. Some deployments nest it under "data".

type commentListResponse struct {
	StatusCode int              `json:"status_code"`
	StatusMsg  string           `json:"status_msg"`
	Comments   []map[string]any `json:"comments"`
	Cursor     json.RawMessage  `json:"cursor"`
	HasMore    *flexBool        `json:"has_more"`

	Data *commentListResponse `json:"data"`
}

// flexBool accepts true/false, 0/1 and their quoted forms. TikTok sends
// has_more as an integer.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	switch s {
	case "true", "1":
		*b = true
	case "false", "0", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %q", s)
	}
	return nil
}

// decodeCommentList decodes a raw envelope body. Numbers are kept as
// json.Number so large comment IDs survive intact.
func decodeCommentList(body []byte) (commentListResponse, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var resp commentListResponse
	if err := dec.Decode(&resp); err != nil {
		return commentListResponse{}, fmt.Errorf("%w: decode comment list: %v", ErrProtocolDrift, err)
	}
	return resp, nil
}

// toPage validates the envelope and converts it to a Page. The cursor is
// only required while more pages remain.
func (r commentListResponse) toPage() (Page, error) {
	env := r
	if env.HasMore == nil && env.Data != nil {
		env = *env.Data
	}

	if env.StatusCode != 0 {
		msg := env.StatusMsg
		if msg == "" {
			msg = "video not found or comments disabled"
		}
		return Page{}, fmt.Errorf("%w: status_code=%d: %s", ErrNotFound, env.StatusCode, msg)
	}
	if env.HasMore == nil {
		return Page{}, fmt.Errorf("%w: envelope missing has_more", ErrProtocolDrift)
	}
	hasMore := bool(*env.HasMore)
	cursor, err := parseCursor(env.Cursor)
	if err != nil && hasMore {
		return Page{}, err
	}

	return Page{
		Items:   env.Comments,
		Cursor:  cursor,
		HasMore: hasMore,
	}, nil
}

// parseCursor returns the cursor token verbatim: JSON strings are unquoted,
// numbers keep their literal text.
func parseCursor(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: envelope missing cursor", ErrProtocolDrift)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: cursor: %v", ErrProtocolDrift, err)
		}
		return s, nil
	}
	return string(raw), nil
}
