package report

// htmlTemplate is the main HTML template for the report
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Attack Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f8fafc;
            --text-primary: #1e293b;
            --text-secondary: #64748b;
            --border-color: #e2e8f0;
            --accent-primary: #3b82f6;
            --accent-success: #22c55e;
            --accent-warning: #f59e0b;
            --accent-error: #ef4444;
            --shadow: 0 1px 3px rgba(0, 0, 0, 0.1);
        }

        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background-color: var(--bg-secondary);
            color: var(--text-primary);
            line-height: 1.6;
        }

        .container { max-width: 1400px; margin: 0 auto; padding: 2rem; }

        header {
            display: flex;
            justify-content: space-between;
            align-items: center;
            margin-bottom: 2rem;
        }

        .meta { color: var(--text-secondary); font-size: 0.875rem; }
        .meta span { margin-right: 1.5rem; }

        .status { padding: 0.5rem 1rem; border-radius: 0.5rem; font-weight: 600; }
        .status.pass { background: #dcfce7; color: #166534; }
        .status.warn { background: #fef3c7; color: #92400e; }

        .cards {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(180px, 1fr));
            gap: 1rem;
            margin-bottom: 2rem;
        }

        .card {
            background: var(--bg-primary);
            border: 1px solid var(--border-color);
            border-radius: 0.75rem;
            padding: 1.25rem;
            box-shadow: var(--shadow);
        }

        .card .label { color: var(--text-secondary); font-size: 0.75rem; text-transform: uppercase; }
        .card .value { font-size: 1.75rem; font-weight: 700; }
        .card .unit { font-size: 0.875rem; color: var(--text-secondary); margin-left: 0.25rem; }

        section { margin-bottom: 2rem; }
        h2 { font-size: 1.125rem; margin-bottom: 1rem; }

        table {
            width: 100%;
            border-collapse: collapse;
            background: var(--bg-primary);
            border-radius: 0.75rem;
            overflow: hidden;
            box-shadow: var(--shadow);
        }

        th, td { padding: 0.625rem 1rem; text-align: right; border-bottom: 1px solid var(--border-color); }
        th:first-child, td:first-child { text-align: left; }
        th { background: var(--bg-secondary); font-size: 0.75rem; text-transform: uppercase; color: var(--text-secondary); }
        td.fail { color: var(--accent-error); font-weight: 600; }

        .chart { background: var(--bg-primary); border-radius: 0.75rem; padding: 1rem; box-shadow: var(--shadow); }

        footer { color: var(--text-secondary); font-size: 0.75rem; text-align: center; margin-top: 2rem; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <div>
                <h1>{{.Name}}</h1>
                <div class="meta">
                    <span>Run {{.RunID}}</span>
                    <span>{{.StartTime.Format "2006-01-02 15:04:05"}}</span>
                    <span>{{formatDuration .Duration}}</span>
                </div>
            </div>
            {{if .Cancelled}}
            <div class="status warn">Interrupted</div>
            {{else if gt .Metrics.TotalFail 0}}
            <div class="status warn">{{formatNumber .Metrics.TotalFail}} failures</div>
            {{else}}
            <div class="status pass">Completed</div>
            {{end}}
        </header>

        <div class="cards">
            <div class="card">
                <div class="label">Users</div>
                <div class="value">{{.Users}}</div>
            </div>
            <div class="card">
                <div class="label">Requests</div>
                <div class="value">{{formatNumber .Metrics.TotalRequests}}</div>
            </div>
            <div class="card">
                <div class="label">Throughput</div>
                <div class="value">{{printf "%.1f" .Metrics.RPS}}<span class="unit">req/s</span></div>
            </div>
            <div class="card">
                <div class="label">Error Rate</div>
                <div class="value">{{percent .Metrics.ErrorRate}}</div>
            </div>
            <div class="card">
                <div class="label">Hatch Time</div>
                <div class="value">{{formatDuration .HatchDuration}}</div>
            </div>
            <div class="card">
                <div class="label">Task Runs</div>
                <div class="value">{{formatNumber .TaskRuns}}</div>
            </div>
        </div>

        <section>
            <h2>Requests</h2>
            <table>
                <thead>
                    <tr>
                        <th>Name</th><th># reqs</th><th># fails</th><th>Fail %</th>
                        <th>Avg</th><th>Min</th><th>Max</th><th>P50</th><th>P95</th><th>P99</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Rows}}
                    <tr>
                        <td>{{.Key}}</td>
                        <td>{{formatNumber .Requests}}</td>
                        <td{{if gt .Fails 0}} class="fail"{{end}}>{{formatNumber .Fails}}</td>
                        <td>{{percent .Ratio}}</td>
                        <td>{{formatLatency .Mean}}</td>
                        <td>{{formatLatency .Min}}</td>
                        <td>{{formatLatency .Max}}</td>
                        <td>{{formatLatency .P50}}</td>
                        <td>{{formatLatency .P95}}</td>
                        <td>{{formatLatency .P99}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </section>

        {{if .StatusCodes}}
        <section>
            <h2>Status Codes</h2>
            <table>
                <thead><tr><th>Status</th><th>Count</th></tr></thead>
                <tbody>
                    {{range .StatusCodes}}
                    <tr><td>{{.Code}}</td><td>{{formatNumber .Count}}</td></tr>
                    {{end}}
                </tbody>
            </table>
        </section>
        {{end}}

        <section>
            <h2>Response Time Distribution</h2>
            <div class="chart"><canvas id="distribution"></canvas></div>
        </section>

        <footer>
            <p>Generated by drove &bull; {{.EndTime.Format "2006-01-02 15:04:05 MST"}}</p>
        </footer>
    </div>

    <script>
        const distribution = {{.DistributionJSON}};
        const datasets = Object.keys(distribution).sort().map(function (key) {
            return {
                label: key,
                data: distribution[key].map(function (p) { return { x: p.ms, y: p.count }; }),
                showLine: true
            };
        });
        if (window.Chart) {
            new Chart(document.getElementById('distribution'), {
                type: 'scatter',
                data: { datasets: datasets },
                options: {
                    scales: {
                        x: { title: { display: true, text: 'response time (ms)' } },
                        y: { title: { display: true, text: 'requests' }, beginAtZero: true }
                    }
                }
            });
        }
    </script>
</body>
</html>
`
