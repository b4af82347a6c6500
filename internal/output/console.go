package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/drove/internal/attack/engine"
	"github.com/wesleyorama2/drove/internal/attack/metrics"
)

// ANSI cursor control used by the live display.
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	ruleWidth = 72

	progressFilled = "█"
	progressEmpty  = "░"
)

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Name    string
	Host    string
	Target  int
	RunTime time.Duration

	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// Console draws the live progress of an attack and its final summary.
type Console struct {
	cfg    ConsoleConfig
	w      io.Writer
	scheme *ColorScheme
	isTTY  bool

	mu    sync.Mutex
	lines int
}

// NewConsole creates a console writer.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)

	var scheme *ColorScheme
	switch {
	case cfg.NoColor:
		scheme = NoColorScheme()
	case cfg.ForceColors || (isTTY && supportsColors()):
		scheme = forcedColorScheme()
	default:
		scheme = NoColorScheme()
	}

	return &Console{cfg: cfg, w: cfg.Writer, scheme: scheme, isTTY: isTTY}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the attack header.
func (c *Console) PrintHeader() {
	if c.cfg.Quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	name := c.cfg.Name
	if name == "" {
		name = "Attack"
	}
	runTime := "until interrupted"
	if c.cfg.RunTime > 0 {
		runTime = formatDuration(c.cfg.RunTime)
	}

	rule := c.scheme.Rule.Sprint(strings.Repeat("━", ruleWidth))
	c.writeln(rule)
	c.writeln(c.scheme.Title.Sprintf("%s - %d users against %s (%s)", name, c.cfg.Target, c.cfg.Host, runTime))
	c.writeln(rule)
	c.writeln("")
}

// Update redraws the live display. Off a terminal it prints one line per
// call instead.
func (c *Console) Update(p engine.Progress) {
	if c.cfg.Quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTTY {
		c.writeln(c.statusLine(p))
		return
	}

	c.clear()
	lines := c.renderLive(p)
	for _, line := range lines {
		c.writeln(line)
	}
	c.lines = len(lines)
}

// totals is the view of a snapshot shown while running.
type totals struct {
	elapsed  time.Duration
	requests int64
	fails    int64
	rps      float64
	mean     time.Duration
	p95      time.Duration
}

func summarize(s *metrics.Snapshot) totals {
	if s == nil {
		return totals{}
	}
	t := totals{
		elapsed:  s.Duration,
		requests: s.TotalRequests,
		fails:    s.TotalFail,
		rps:      s.RPS(),
	}
	var total time.Duration
	var count int64
	for _, rs := range s.Requests {
		total += rs.TotalResponseTime
		count += rs.ResponseTimeCounter
		if rs.Latency.P95 > t.p95 {
			t.p95 = rs.Latency.P95
		}
	}
	if count > 0 {
		t.mean = total / time.Duration(count)
	}
	return t
}

func (c *Console) statusLine(p engine.Progress) string {
	t := summarize(p.Metrics)
	return fmt.Sprintf("[%s] %s | Users: %d/%d | Reqs: %d | RPS: %.1f | Fails: %d | P95: %s",
		formatDuration(t.elapsed),
		p.Phase,
		p.Users,
		p.Target,
		t.requests,
		t.rps,
		t.fails,
		formatDurationShort(t.p95))
}

func (c *Console) renderLive(p engine.Progress) []string {
	s := c.scheme
	t := summarize(p.Metrics)

	var lines []string
	if c.cfg.RunTime > 0 && p.Phase == engine.PhaseRunning {
		progress := float64(t.elapsed) / float64(c.cfg.RunTime)
		lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
			s.Success.Sprint(progressBar(progress, 40)),
			s.Title.Sprintf("%.0f%%", clamp(progress)*100),
			s.Dim.Sprintf("%s / %s", formatDuration(t.elapsed), formatDuration(c.cfg.RunTime))))
	}
	lines = append(lines, fmt.Sprintf("Phase:    %s", s.Phase.Sprint(p.Phase)))
	lines = append(lines, "")

	failRatio := 0.0
	if t.requests > 0 {
		failRatio = float64(t.fails) / float64(t.requests)
	}
	rc := s.rate(failRatio)

	const col = 32
	lines = append(lines,
		pad(fmt.Sprintf("Users:    %s / %d", s.Value.Sprint(p.Users), p.Target), col)+
			fmt.Sprintf("Requests: %s", s.Value.Sprint(formatNumber(t.requests))))
	lines = append(lines,
		pad(fmt.Sprintf("RPS:      %s", s.Success.Sprintf("%.1f", t.rps)), col)+
			fmt.Sprintf("Fails:    %s (%s)", rc.Sprint(t.fails), rc.Sprintf("%.1f%%", failRatio*100)))
	lines = append(lines,
		pad(fmt.Sprintf("P95:      %s", s.Latency.Sprint(formatDurationShort(t.p95))), col)+
			fmt.Sprintf("Avg:      %s", s.Latency.Sprint(formatDurationShort(t.mean))))
	return lines
}

func (c *Console) clear() {
	if c.lines == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.lines))
	for i := 0; i < c.lines; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.lines))
	c.lines = 0
}

// PrintSummary prints the final per-request table.
func (c *Console) PrintSummary(r *engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r == nil || r.Metrics == nil {
		c.writeln("No results available")
		return
	}
	snap := r.Metrics
	s := c.scheme

	if c.cfg.Quiet {
		c.writeln(fmt.Sprintf("%d requests, %d failed (%.1f%%)",
			snap.TotalRequests, snap.TotalFail, snap.ErrorRate()*100))
		return
	}

	if c.isTTY {
		c.clear()
	}

	status := s.Success.Sprint("Completed " + SuccessIcon(true))
	switch {
	case r.Cancelled:
		status = s.Warn.Sprint("Interrupted")
	case snap.TotalFail > 0:
		status = s.Warn.Sprintf("Completed with %d failures", snap.TotalFail)
	}

	rule := s.Rule.Sprint(strings.Repeat("━", ruleWidth))
	c.writeln("")
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - %s", s.Title.Sprint(r.RunID), status))
	c.writeln(rule)
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", s.Value.Sprint(formatDuration(r.Duration))))
	c.writeln(fmt.Sprintf("Hatch time:    %s", s.Value.Sprint(formatDuration(r.HatchDuration))))
	c.writeln(fmt.Sprintf("Users:         %s%s", s.Value.Sprint(r.Users), usersBySet(r.UsersBySet)))
	c.writeln(fmt.Sprintf("Total Reqs:    %s", s.Value.Sprint(formatNumber(snap.TotalRequests))))
	c.writeln(fmt.Sprintf("Success Rate:  %s", s.rate(snap.ErrorRate()).Sprintf("%.1f%%", (1-snap.ErrorRate())*100)))
	c.writeln(fmt.Sprintf("Throughput:    %s", s.Value.Sprintf("%.2f req/s", snap.RPS())))
	if r.Undrained > 0 {
		c.writeln(fmt.Sprintf("Undrained:     %s", s.Error.Sprint(r.Undrained)))
	}
	c.writeln("")

	c.printTable(snap)
	c.printStatusCodes(snap)

	if r.DebugLog != "" {
		c.writeln(fmt.Sprintf("Debug log:     %s (%d records)", r.DebugLog, r.DebugRecords))
	}
	if r.RequestLog != "" {
		c.writeln(fmt.Sprintf("Request log:   %s (%d records)", r.RequestLog, r.RequestRecords))
	}
}

func (c *Console) printTable(snap *metrics.Snapshot) {
	s := c.scheme
	header := fmt.Sprintf("%-32s %8s %8s %9s %9s %9s %9s %9s %9s",
		"Name", "# reqs", "# fails", "Avg", "Min", "Max", "P50", "P95", "P99")
	c.writeln(s.Title.Sprint(header))
	c.writeln(s.Dim.Sprint(strings.Repeat("─", len(header))))

	for _, key := range snap.Keys() {
		rs := snap.Requests[key]
		fails := fmt.Sprintf("%8d", rs.FailCount)
		if rs.FailCount > 0 {
			fails = s.Error.Sprint(fails)
		}
		c.writeln(fmt.Sprintf("%-32s %8d %s %9s %9s %9s %9s %9s %9s",
			truncate(key, 32),
			rs.SuccessCount+rs.FailCount,
			fails,
			formatDurationShort(rs.MeanResponseTime()),
			formatDurationShort(rs.MinResponseTime),
			formatDurationShort(rs.MaxResponseTime),
			formatDurationShort(rs.Latency.P50),
			formatDurationShort(rs.Latency.P95),
			formatDurationShort(rs.Latency.P99)))
	}
	c.writeln("")
}

func (c *Console) printStatusCodes(snap *metrics.Snapshot) {
	counts := make(map[int]int64)
	for _, rs := range snap.Requests {
		for code, n := range rs.StatusCodeCounts {
			counts[code] += n
		}
	}
	if len(counts) == 0 {
		return
	}
	codes := make([]int, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	c.writeln(c.scheme.Title.Sprint("Status codes:"))
	for _, code := range codes {
		c.writeln(fmt.Sprintf("  %s %s", c.statusColor(code).Sprintf("%3d", code), formatNumber(counts[code])))
	}
	c.writeln("")
}

func (c *Console) statusColor(code int) *color.Color {
	switch {
	case code == 0 || code >= 500:
		return c.scheme.Error
	case code >= 400:
		return c.scheme.Warn
	default:
		return c.scheme.Success
	}
}

func usersBySet(bySet map[string]int) string {
	if len(bySet) == 0 {
		return ""
	}
	names := make([]string, 0, len(bySet))
	for name := range bySet {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %d", name, bySet[name])
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func progressBar(progress float64, width int) string {
	filled := int(clamp(progress) * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (c *Console) write(s string) {
	fmt.Fprint(c.w, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.w, s)
}
