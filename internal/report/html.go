package report

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/netcrate/nexa/internal/ops"
)

// HTMLConfig controls the standalone HTML report
type HTMLConfig struct {
	Title string
	Theme string
	// AllRows includes closed and unidentified filtered ports
	AllRows bool
}

type htmlData struct {
	Config      HTMLConfig
	GeneratedAt time.Time
	Doc         Document
	Rows        []Row
}

// HTMLReporter renders a Document as a single self-contained page
type HTMLReporter struct {
	config   HTMLConfig
	template *template.Template
}

// NewHTMLReporter parses the report template
func NewHTMLReporter(config HTMLConfig) (*HTMLReporter, error) {
	if config.Title == "" {
		config.Title = "nexa scan report"
	}
	if config.Theme == "" {
		config.Theme = "default"
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatTime":    formatTime,
		"formatSeconds": formatSeconds,
		"statusClass":   statusClass,
		"percentage":    percentage,
		"lines":         func(s string) []string { return strings.Split(strings.TrimSpace(s), "\n") },
		"totalPorts":    func(c Counts) int { return c.Open + c.Closed + c.Filtered },
	}).Parse(htmlTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	return &HTMLReporter{config: config, template: tmpl}, nil
}

// Write renders doc to w
func (hr *HTMLReporter) Write(w io.Writer, doc Document) error {
	rows := doc.Rows
	if !hr.config.AllRows {
		rows = Visible(rows)
	}
	return hr.template.Execute(w, htmlData{
		Config:      hr.config,
		GeneratedAt: time.Now(),
		Doc:         doc,
		Rows:        rows,
	})
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05 MST")
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second))
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d.Nanoseconds())/1e6)
	}
	return d.Round(10 * time.Millisecond).String()
}

func statusClass(status ops.Status) string {
	switch status {
	case ops.StatusOpen:
		return "status-open"
	case ops.StatusFiltered:
		return "status-filtered"
	case ops.StatusClosed:
		return "status-closed"
	default:
		return "status-secondary"
	}
}

func percentage(value, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(value) / float64(total) * 100
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Config.Title}}: {{.Doc.Target}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; background-color: #f8f9fa; }
        .container { max-width: 1200px; margin: 0 auto; padding: 20px; }
        .header, .section, .summary-card { background: white; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .header { padding: 30px; margin-bottom: 20px; }
        .header h1 { color: #2c3e50; margin-bottom: 10px; }
        .header .meta { color: #666; font-size: 14px; }
        .summary { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 20px; margin-bottom: 20px; }
        .summary-card { padding: 20px; }
        .summary-card h3 { color: #2c3e50; margin-bottom: 10px; font-size: 14px; text-transform: uppercase; letter-spacing: 0.5px; }
        .summary-card .value { font-size: 24px; font-weight: bold; color: #3498db; }
        .section { padding: 30px; margin-bottom: 20px; }
        .section h2 { color: #2c3e50; margin-bottom: 20px; padding-bottom: 10px; border-bottom: 2px solid #ecf0f1; }
        .ports-table { width: 100%; border-collapse: collapse; }
        .ports-table th, .ports-table td { padding: 12px; text-align: left; border-bottom: 1px solid #ecf0f1; }
        .ports-table th { background: #f8f9fa; font-weight: 600; color: #2c3e50; }
        .ports-table td.banner { font-family: monospace; color: #666; }
        .port-status { padding: 4px 8px; border-radius: 4px; font-size: 12px; font-weight: bold; }
        .port-status.status-open { background: #d4edda; color: #155724; }
        .port-status.status-filtered { background: #fff3cd; color: #856404; }
        .port-status.status-closed { background: #f8d7da; color: #721c24; }
        pre { white-space: pre-wrap; font-size: 13px; background: #f8f9fa; padding: 15px; border-radius: 4px; }
        .footer { text-align: center; color: #666; font-size: 14px; margin-top: 40px; padding-top: 20px; border-top: 1px solid #ecf0f1; }
        {{if eq .Config.Theme "dark"}}
        body { background-color: #1a1a1a; color: #e0e0e0; }
        .header, .summary-card, .section { background: #2d2d2d; }
        .header h1, .section h2, .summary-card h3 { color: #ffffff; }
        .ports-table th, pre { background: #3a3a3a; }
        {{end}}
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>{{.Config.Title}}</h1>
            <div class="meta">
                Target: <strong>{{.Doc.Target}}</strong> |
                Ports: <strong>{{.Doc.Ports}}</strong> |
                Run: <strong>{{.Doc.RunID}}</strong> |
                Generated: <strong>{{formatTime .GeneratedAt}}</strong>
            </div>
        </div>

        <div class="summary">
            <div class="summary-card"><h3>Open</h3><div class="value">{{.Doc.Counts.Open}}</div></div>
            <div class="summary-card"><h3>Filtered</h3><div class="value">{{.Doc.Counts.Filtered}}</div></div>
            <div class="summary-card"><h3>Closed</h3><div class="value">{{.Doc.Counts.Closed}}</div></div>
            <div class="summary-card"><h3>Open Rate</h3><div class="value">{{printf "%.1f%%" (percentage .Doc.Counts.Open (totalPorts .Doc.Counts))}}</div></div>
            <div class="summary-card"><h3>Duration</h3><div class="value">{{formatSeconds .Doc.Duration}}</div></div>
        </div>

        <div class="section">
            <h2>Ports</h2>
            {{if .Rows}}
            <table class="ports-table">
                <thead><tr><th>Port</th><th>Status</th><th>Service</th><th>Banner</th></tr></thead>
                <tbody>
                {{range .Rows}}
                <tr>
                    <td>{{.Port}}</td>
                    <td><span class="port-status {{statusClass .Status}}">{{.Status}}</span></td>
                    <td>{{if .Service}}{{.Service}}{{else}}-{{end}}</td>
                    <td class="banner">{{.Version}}</td>
                </tr>
                {{end}}
                </tbody>
            </table>
            {{else}}
            <p>No open or relevant filtered ports found.</p>
            {{end}}
        </div>

        {{with .Doc.Intel}}
        {{if .DNS}}<div class="section"><h2>DNS</h2><pre>{{.DNS}}</pre></div>{{end}}
        {{if .HTTP}}<div class="section"><h2>HTTP Headers</h2><pre>{{.HTTP}}</pre></div>{{end}}
        {{if .WHOIS}}<div class="section"><h2>WHOIS</h2><pre>{{.WHOIS}}</pre></div>{{end}}
        {{end}}

        {{if .Doc.Analysis}}
        <div class="section">
            <h2>Analysis</h2>
            {{range lines .Doc.Analysis}}<p>{{.}}</p>{{end}}
        </div>
        {{end}}

        <div class="footer">Generated by nexa. Scan only hosts you are authorised to test.</div>
    </div>
</body>
</html>
`
