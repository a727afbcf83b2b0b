// Package export writes retrieval results to disk as JSON, CSV or both.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tiktok "github.com/RavensCloud/tiktok-comments"
)

// Format selects the output files written by Write.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatBoth Format = "both"
)

// ParseFormat accepts json, csv or both, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatBoth:
		return f, nil
	case "":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json, csv or both)", s)
}

// Header is the CSV column order. Replies carry their parent's cid in
// parent_cid; top-level comments leave it empty.
var Header = []string{
	"aweme_id",
	"cid",
	"parent_cid",
	"author_pin",
	"comment_language",
	"create_time",
	"digg_count",
	"reply_comment_total",
	"region",
	"text",
	"text_extra",
	"user_nickname",
	"user_unique_id",
	"user_signature",
	"user_ins_id",
	"share_desc",
	"share_url",
}

// Write stores res under dir as base.json and/or base.csv and returns the
// paths written.
func Write(dir, base string, format Format, res tiktok.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var paths []string
	if format == FormatJSON || format == FormatBoth {
		path := filepath.Join(dir, base+".json")
		if err := writeFile(path, func(w io.Writer) error { return WriteJSON(w, res) }); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if format == FormatCSV || format == FormatBoth {
		path := filepath.Join(dir, base+".csv")
		if err := writeFile(path, func(w io.Writer) error { return WriteCSV(w, res.Comments) }); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WriteJSON encodes res as indented UTF-8 JSON. Non-ASCII text is written
// as-is and HTML characters are not escaped.
func WriteJSON(w io.Writer, res tiktok.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	return enc.Encode(res)
}

// WriteCSV writes one row per comment followed by one row per reply of that
// comment.
func WriteCSV(w io.Writer, comments []tiktok.Comment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, c := range comments {
		if err := cw.Write(row(c, "")); err != nil {
			return err
		}
		for _, r := range c.Replies {
			if err := cw.Write(row(r, c.CID)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(c tiktok.Comment, parent string) []string {
	textExtra := ""
	if len(c.TextExtra) > 0 {
		b, _ := json.Marshal(c.TextExtra)
		textExtra = string(b)
	}
	return []string{
		c.AwemeID,
		c.CID,
		parent,
		strconv.FormatBool(c.AuthorPin),
		c.CommentLanguage,
		strconv.FormatInt(c.CreateTime, 10),
		strconv.FormatInt(c.DiggCount, 10),
		strconv.FormatInt(c.ReplyCommentTotal, 10),
		c.Region,
		c.Text,
		textExtra,
		c.User.Nickname,
		c.User.UniqueID,
		c.User.Signature,
		c.User.InsID,
		c.ShareInfo.Desc,
		c.ShareInfo.URL,
	}
}
