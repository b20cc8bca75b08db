// Package report merges prober outcomes with nmap service descriptions and
// renders them as a table, JSON or YAML.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/netcrate/nexa/internal/enrich"
	"github.com/netcrate/nexa/internal/lookup"
	"github.com/netcrate/nexa/internal/ops"
)

// MaxVersionLen caps the banner text carried into a row
const MaxVersionLen = 120

// Row is one line of the final report
type Row struct {
	Port    int        `json:"port" yaml:"port"`
	Status  ops.Status `json:"status" yaml:"status"`
	Service string     `json:"service" yaml:"service"`
	Version string     `json:"version" yaml:"version"`
}

// Merge pairs every scanned port with its nmap description, ascending by port
func Merge(result ops.ScanResult, services enrich.Services) []Row {
	rows := make([]Row, 0, len(result))
	for _, port := range result.Ports() {
		outcome := result[port]
		rows = append(rows, Row{
			Port:    port,
			Status:  outcome.Status,
			Service: services[port],
			Version: truncate(outcome.Banner, MaxVersionLen),
		})
	}
	return rows
}

// Relevant reports whether a row belongs in the rendered table: open ports
// always, filtered ports only when nmap identified something there.
func Relevant(r Row) bool {
	switch r.Status {
	case ops.StatusOpen:
		return true
	case ops.StatusFiltered:
		svc := strings.TrimSpace(r.Service)
		return svc != "" && !strings.EqualFold(svc, enrich.UnknownService) && !strings.EqualFold(svc, "unknown")
	default:
		return false
	}
}

// Visible filters rows down to the relevant ones, keeping order
func Visible(rows []Row) []Row {
	var out []Row
	for _, r := range rows {
		if Relevant(r) {
			out = append(out, r)
		}
	}
	return out
}

// Summary renders every row as "port status service version", one per line
func Summary(rows []Row) string {
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%d %s %s %s\n", r.Port, r.Status, r.Service, r.Version)
	}
	return b.String()
}

// Counts tallies rows per status
type Counts struct {
	Open     int `json:"open" yaml:"open"`
	Closed   int `json:"closed" yaml:"closed"`
	Filtered int `json:"filtered" yaml:"filtered"`
}

// Document is the machine-readable form of a run
type Document struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Target    string        `json:"target" yaml:"target"`
	Ports     string        `json:"ports" yaml:"ports"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  float64       `json:"duration_seconds" yaml:"duration_seconds"`
	Counts    Counts        `json:"counts" yaml:"counts"`
	Rows      []Row         `json:"rows" yaml:"rows"`
	Intel     *lookup.Intel `json:"intel,omitempty" yaml:"intel,omitempty"`
	Analysis  string        `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// NewDocument assembles a Document from merged rows
func NewDocument(runID, target string, ports []int, started time.Time, elapsed time.Duration, rows []Row) Document {
	doc := Document{
		RunID:     runID,
		Target:    target,
		Ports:     ops.FormatPortSpec(ports),
		StartedAt: started.UTC(),
		Duration:  elapsed.Seconds(),
		Rows:      rows,
	}
	if doc.Rows == nil {
		doc.Rows = []Row{}
	}
	for _, r := range rows {
		switch r.Status {
		case ops.StatusOpen:
			doc.Counts.Open++
		case ops.StatusClosed:
			doc.Counts.Closed++
		case ops.StatusFiltered:
			doc.Counts.Filtered++
		}
	}
	return doc
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
