package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ecodeclub/ekit/slice"

	"github.com/RavensCloud/tiktok-comments/internal/export"
)

// job is one entry of a jobs file. Unset fields fall back to the command
// line defaults.
type job struct {
	VideoURL      string `json:"video_url"`
	URL           string `json:"url"`
	MaxComments   *int   `json:"max_comments"`
	ScrapeReplies *bool  `json:"scrape_replies"`
	ExportFormat  string `json:"export_format"`
	OutputFile    string `json:"output_file"`
}

type jobDefaults struct {
	limit   int
	replies bool
	format  export.Format
}

// plan is a job with every setting resolved.
type plan struct {
	index      int
	url        string
	limit      int
	replies    bool
	format     export.Format
	outputFile string
}

func loadJobs(path string) ([]job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	var jobs []job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parse jobs file %s: %w", path, err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("jobs file %s has no jobs", path)
	}
	return jobs, nil
}

// planJobs resolves every job. An explicit format flag wins over the job's
// own export_format.
func planJobs(jobs []job, d jobDefaults, formatFlag export.Format) ([]plan, error) {
	plans := slice.Map(jobs, func(i int, j job) plan {
		p := plan{
			index:      i,
			url:        strings.TrimSpace(j.VideoURL),
			limit:      d.limit,
			replies:    d.replies,
			format:     d.format,
			outputFile: j.OutputFile,
		}
		if p.url == "" {
			p.url = strings.TrimSpace(j.URL)
		}
		if j.MaxComments != nil {
			p.limit = *j.MaxComments
		}
		if j.ScrapeReplies != nil {
			p.replies = *j.ScrapeReplies
		}
		return p
	})

	for i, j := range jobs {
		if plans[i].url == "" {
			return nil, fmt.Errorf("job #%d: missing video_url", i+1)
		}
		switch {
		case formatFlag != "":
			plans[i].format = formatFlag
		case j.ExportFormat != "":
			f, err := export.ParseFormat(j.ExportFormat)
			if err != nil {
				return nil, fmt.Errorf("job #%d: %w", i+1, err)
			}
			plans[i].format = f
		}
	}
	return plans, nil
}
