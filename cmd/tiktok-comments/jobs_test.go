package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RavensCloud/tiktok-comments/internal/export"
)

func writeJobs(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestPlanJobs_Overrides(t *testing.T) {
	t.Parallel()

	path := writeJobs(t, `[
		{"video_url": "https://www.tiktok.com/@a/video/7211250685902359850", "max_comments": 5, "scrape_replies": true, "export_format": "csv", "output_file": "a"},
		{"url": "7211250685902359851"}
	]`)
	jobs, err := loadJobs(path)
	require.NoError(t, err)

	plans, err := planJobs(jobs, jobDefaults{limit: 100, format: export.FormatJSON}, "")
	require.NoError(t, err)
	require.Len(t, plans, 2)

	assert.Equal(t, 5, plans[0].limit)
	assert.True(t, plans[0].replies)
	assert.Equal(t, export.FormatCSV, plans[0].format)
	assert.Equal(t, "a", plans[0].outputFile)

	assert.Equal(t, "7211250685902359851", plans[1].url)
	assert.Equal(t, 100, plans[1].limit)
	assert.False(t, plans[1].replies)
	assert.Equal(t, export.FormatJSON, plans[1].format)
}

func TestPlanJobs_FormatFlagWins(t *testing.T) {
	t.Parallel()

	jobs := []job{{VideoURL: "7211250685902359850", ExportFormat: "csv"}}
	plans, err := planJobs(jobs, jobDefaults{limit: 10, format: export.FormatJSON}, export.FormatBoth)
	require.NoError(t, err)
	assert.Equal(t, export.FormatBoth, plans[0].format)
}

func TestPlanJobs_Invalid(t *testing.T) {
	t.Parallel()

	_, err := planJobs([]job{{OutputFile: "x"}}, jobDefaults{limit: 1}, "")
	assert.ErrorContains(t, err, "missing video_url")

	_, err = planJobs([]job{{VideoURL: "7211250685902359850", ExportFormat: "xml"}}, jobDefaults{limit: 1}, "")
	assert.ErrorContains(t, err, "unknown export format")
}

func TestLoadJobs_Errors(t *testing.T) {
	t.Parallel()

	_, err := loadJobs(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = loadJobs(writeJobs(t, `[]`))
	assert.ErrorContains(t, err, "no jobs")

	_, err = loadJobs(writeJobs(t, `{not json`))
	assert.Error(t, err)
}
