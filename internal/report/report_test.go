package report

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/drove/internal/attack/engine"
	"github.com/wesleyorama2/drove/internal/attack/metrics"
)

func sampleResult() *engine.Result {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &engine.Result{
		RunID:     "run-1",
		StartTime: start,
		EndTime:   start.Add(3 * time.Second),
		Duration:  2 * time.Second,
		Users:     2,
		TaskRuns:  6,
		Metrics: &metrics.Snapshot{
			Requests: map[string]*metrics.RequestStats{
				"GET /": {
					Method: "GET", Name: "/",
					ResponseTimeCounter: 4, SuccessCount: 4,
					TotalResponseTime: 40 * time.Millisecond,
					ResponseTimes:     map[int64]int64{10: 3, 8: 1},
					StatusCodeCounts:  map[int]int64{200: 4},
				},
				"GET /<script>": {
					Method: "GET", Name: "/<script>",
					ResponseTimeCounter: 2, SuccessCount: 1, FailCount: 1,
					ResponseTimes:    map[int64]int64{5: 2},
					StatusCodeCounts: map[int]int64{200: 1, 500: 1},
				},
			},
			Duration:      2 * time.Second,
			TotalRequests: 6,
			TotalSuccess:  5,
			TotalFail:     1,
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		format  string
		path    string
		want    Format
		wantErr bool
	}{
		{"", "out.json", FormatJSON, false},
		{"", "out.JSON", FormatJSON, false},
		{"", "out.html", FormatHTML, false},
		{"", "report", FormatHTML, false},
		{"JSON", "out.html", FormatJSON, false},
		{"html", "out.json", FormatHTML, false},
		{"pdf", "out.pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.format+"/"+tt.path, func(t *testing.T) {
			got, err := ParseFormat(tt.format, tt.path)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTML(t *testing.T) {
	html, err := HTML(sampleResult(), "")
	require.NoError(t, err)

	assert.Contains(t, html, "<title>Attack run-1 - Attack Report</title>")
	assert.Contains(t, html, "1 failures")
	assert.Contains(t, html, "3.0<span class=\"unit\">req/s</span>")
	assert.Contains(t, html, "16.67%")
	assert.Contains(t, html, `<td class="fail">1</td>`)
	assert.Contains(t, html, "GET /&lt;script&gt;")
	assert.NotContains(t, html, "GET /<script>")
	assert.Contains(t, html, `<tr><td>500</td><td>1</td></tr>`)
	assert.Less(t, strings.Index(html, "<td>GET /</td>"), strings.Index(html, "GET /&lt;script&gt;"))
}

func TestHTML_NilResult(t *testing.T) {
	_, err := HTML(nil, "x")
	assert.Error(t, err)
	_, err = HTML(&engine.Result{}, "x")
	assert.Error(t, err)
}

func TestDistributionJSON(t *testing.T) {
	out, err := distributionJSON(sampleResult().Metrics)
	require.NoError(t, err)

	var series map[string][]distributionPoint
	require.NoError(t, json.Unmarshal([]byte(out), &series))
	assert.Equal(t, []distributionPoint{{Millis: 8, Count: 1}, {Millis: 10, Count: 3}}, series["GET /"])
	assert.Len(t, series, 2)
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "nested", "result.json")
	require.NoError(t, Write(sampleResult(), "Smoke", FormatJSON, jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, float64(6), decoded["task_runs"])

	htmlPath := filepath.Join(dir, "result.html")
	require.NoError(t, Write(sampleResult(), "Smoke", FormatHTML, htmlPath))
	data, err = os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<h1>Smoke</h1>")

	err = Write(sampleResult(), "Smoke", Format("xml"), filepath.Join(dir, "x"))
	assert.True(t, errors.Is(err, ErrInvalidFormat))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "-1,000", formatNumber(-1000))
	assert.Equal(t, "1m 30s", formatDuration(90*time.Second))
	assert.Equal(t, "2h", formatDuration(2*time.Hour))
	assert.Equal(t, "0", formatLatency(0))
	assert.Equal(t, "5.50ms", formatLatency(5500*time.Microsecond))
	assert.Equal(t, "250ms", formatLatency(250*time.Millisecond))
	assert.Equal(t, "50.00%", percent(0.5))
}
