// Package report renders attack results as JSON or HTML files.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wesleyorama2/drove/internal/attack/engine"
	"github.com/wesleyorama2/drove/internal/attack/metrics"
)

// Format is a report file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ErrInvalidFormat is returned for an unknown report format.
var ErrInvalidFormat = errors.New("invalid report format")

// ParseFormat parses a --report-format value. An empty value picks the
// format from the extension of path and defaults to HTML.
func ParseFormat(s, path string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "html":
		return FormatHTML, nil
	case "":
		if strings.EqualFold(filepath.Ext(path), ".json") {
			return FormatJSON, nil
		}
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w %q (expected json or html)", ErrInvalidFormat, s)
	}
}

// Write renders result in format and writes it to path, creating the
// parent directory if needed.
func Write(result *engine.Result, name string, format Format, path string) error {
	var data []byte
	var err error
	switch format {
	case FormatJSON:
		data, err = JSON(result)
	case FormatHTML:
		var html string
		html, err = HTML(result, name)
		data = []byte(html)
	default:
		return fmt.Errorf("%w %q", ErrInvalidFormat, format)
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// JSON renders result as indented JSON.
func JSON(result *engine.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("result cannot be nil")
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return data, nil
}

// Row is one request key of the HTML table.
type Row struct {
	Key      string
	Requests int64
	Fails    int64
	Mean     time.Duration
	Min      time.Duration
	Max      time.Duration
	P50      time.Duration
	P95      time.Duration
	P99      time.Duration
	Ratio    float64
}

// StatusCount is the total for one status code.
type StatusCount struct {
	Code  int
	Count int64
}

// reportData contains all data needed to render the HTML report.
type reportData struct {
	*engine.Result
	Name             string
	Rows             []Row
	StatusCodes      []StatusCount
	DistributionJSON template.JS
}

// HTML renders result as a standalone HTML page.
func HTML(result *engine.Result, name string) (string, error) {
	if result == nil || result.Metrics == nil {
		return "", fmt.Errorf("result cannot be nil")
	}
	if name == "" {
		name = "Attack " + result.RunID
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	dist, err := distributionJSON(result.Metrics)
	if err != nil {
		return "", fmt.Errorf("failed to convert distribution: %w", err)
	}

	data := reportData{
		Result:           result,
		Name:             name,
		Rows:             rows(result.Metrics),
		StatusCodes:      statusCodes(result.Metrics),
		DistributionJSON: template.JS(dist),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func rows(snap *metrics.Snapshot) []Row {
	out := make([]Row, 0, len(snap.Requests))
	for _, key := range snap.Keys() {
		rs := snap.Requests[key]
		out = append(out, Row{
			Key:      key,
			Requests: rs.SuccessCount + rs.FailCount,
			Fails:    rs.FailCount,
			Mean:     rs.MeanResponseTime(),
			Min:      rs.MinResponseTime,
			Max:      rs.MaxResponseTime,
			P50:      rs.Latency.P50,
			P95:      rs.Latency.P95,
			P99:      rs.Latency.P99,
			Ratio:    rs.FailRatio(),
		})
	}
	return out
}

func statusCodes(snap *metrics.Snapshot) []StatusCount {
	totals := make(map[int]int64)
	for _, rs := range snap.Requests {
		for code, n := range rs.StatusCodeCounts {
			totals[code] += n
		}
	}
	out := make([]StatusCount, 0, len(totals))
	for code, n := range totals {
		out = append(out, StatusCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// distributionPoint is one rounded response time bucket of one key.
type distributionPoint struct {
	Millis int64 `json:"ms"`
	Count  int64 `json:"count"`
}

// distributionJSON exports the rounded response times of every key for
// the chart.
func distributionJSON(snap *metrics.Snapshot) (string, error) {
	series := make(map[string][]distributionPoint, len(snap.Requests))
	for key, rs := range snap.Requests {
		points := make([]distributionPoint, 0, len(rs.ResponseTimes))
		for ms, n := range rs.ResponseTimes {
			points = append(points, distributionPoint{Millis: ms, Count: n})
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Millis < points[j].Millis })
		series[key] = points
	}
	b, err := json.Marshal(series)
	if err != nil {
		return "{}", err
	}
	return string(b), nil
}

// templateFuncs returns the template helper functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"formatLatency":  formatLatency,
		"percent":        percent,
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// formatNumber formats a large number with commas.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	var sb strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// formatLatency formats a latency duration in a human-readable way.
func formatLatency(d time.Duration) string {
	if d == 0 {
		return "0"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		ms := float64(d.Microseconds()) / 1000.0
		if ms < 10 {
			return fmt.Sprintf("%.2fms", ms)
		}
		if ms < 100 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%dms", int(ms))
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// percent renders a ratio as a percentage.
func percent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}
