package runlog_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tendly/internal/errs"
	"tendly/internal/runlog"
	"tendly/models"
)

func clock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func TestRunWrite(t *testing.T) {
	start := time.Date(2024, 3, 5, 9, 30, 15, 0, time.UTC)
	errAt := start.Add(2 * time.Second)
	end := start.Add(90 * time.Second)

	r := runlog.StartAt("scrape_tenders", "UK", "Find a Tender API",
		map[string]any{"limit": 100, "stage": "tender"}, clock(start, errAt, end))
	r.AddError(errs.Parse("release has no id", nil))
	r.AddError(nil)
	r.Finish(models.RunStatusSuccess, 3, 2, 0, 1)

	dir := filepath.Join(t.TempDir(), "logs")
	path, err := r.Write(dir)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`scrape_20240305_093015_[0-9a-f]{8}\.json$`), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, r.RunID, got["run_id"])
	require.Equal(t, "scrape_tenders", got["task"])
	require.Equal(t, "UK", got["country_code"])
	require.Equal(t, "success", got["status"])
	require.Equal(t, float64(90), got["duration_seconds"])
	require.Equal(t, float64(3), got["records_fetched"])
	require.Equal(t, float64(2), got["records_inserted"])
	require.Equal(t, float64(0), got["records_duplicates"])
	require.Equal(t, float64(1), got["records_errors"])
	require.Equal(t, map[string]any{"limit": float64(100), "stage": "tender"}, got["parameters"])

	entries := got["errors"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	require.Equal(t, "ParseError", entry["type"])
	require.Equal(t, "parse error: release has no id", entry["error"])
	require.Equal(t, "2024-03-05T09:30:17Z", entry["timestamp"])
}

func TestRunFatalError(t *testing.T) {
	r := runlog.Start("scrape_eu_tenders", "EU", "TED API", nil)
	r.AddError(errs.Fatal("fetch page", errors.New("connection refused")))
	r.Finish(models.RunStatusError, 0, 0, 0, 0)

	require.Equal(t, models.RunStatusError, r.Status)
	require.NotNil(t, r.EndTime)
	require.Len(t, r.Errors, 1)
	require.Equal(t, "FatalError", r.Errors[0].Type)
	require.NotNil(t, r.Parameters)
}

func TestRunIDsAreUnique(t *testing.T) {
	a := runlog.Start("t", "UK", "s", nil)
	b := runlog.Start("t", "UK", "s", nil)
	require.NotEqual(t, a.RunID, b.RunID)
}
