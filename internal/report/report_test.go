package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/netcrate/nexa/internal/enrich"
	"github.com/netcrate/nexa/internal/ops"
)

func sampleResult() ops.ScanResult {
	return ops.ScanResult{
		443: {Port: 443, Status: ops.StatusFiltered},
		22:  {Port: 22, Status: ops.StatusOpen, Banner: "SSH-2.0-OpenSSH_9.6"},
		23:  {Port: 23, Status: ops.StatusClosed},
		80:  {Port: 80, Status: ops.StatusOpen, Banner: strings.Repeat("x", 300)},
		445: {Port: 445, Status: ops.StatusFiltered},
		139: {Port: 139, Status: ops.StatusFiltered},
	}
}

func sampleServices() enrich.Services {
	return enrich.Services{
		22:  "ssh OpenSSH 9.6p1",
		80:  "http nginx",
		443: "https",
		445: enrich.UnknownService,
	}
}

func TestMerge(t *testing.T) {
	rows := Merge(sampleResult(), sampleServices())
	wantPorts := []int{22, 23, 80, 139, 443, 445}
	if len(rows) != len(wantPorts) {
		t.Fatalf("got %d rows", len(rows))
	}
	for i, port := range wantPorts {
		if rows[i].Port != port {
			t.Fatalf("row %d: port %d want %d", i, rows[i].Port, port)
		}
	}
	if rows[0].Service != "ssh OpenSSH 9.6p1" || rows[0].Version != "SSH-2.0-OpenSSH_9.6" {
		t.Fatalf("row 22: %+v", rows[0])
	}
	if len(rows[2].Version) != MaxVersionLen {
		t.Fatalf("banner not truncated: %d", len(rows[2].Version))
	}
	if rows[3].Service != "" {
		t.Fatalf("port without nmap data got service %q", rows[3].Service)
	}
}

func TestVisible(t *testing.T) {
	cases := []struct {
		row  Row
		want bool
	}{
		{Row{Status: ops.StatusOpen}, true},
		{Row{Status: ops.StatusOpen, Service: enrich.UnknownService}, true},
		{Row{Status: ops.StatusClosed, Service: "ssh"}, false},
		{Row{Status: ops.StatusFiltered}, false},
		{Row{Status: ops.StatusFiltered, Service: "  "}, false},
		{Row{Status: ops.StatusFiltered, Service: "(Unknown)"}, false},
		{Row{Status: ops.StatusFiltered, Service: "unknown"}, false},
		{Row{Status: ops.StatusFiltered, Service: "https"}, true},
	}
	for _, tc := range cases {
		if got := Relevant(tc.row); got != tc.want {
			t.Errorf("Relevant(%+v) = %v", tc.row, got)
		}
	}

	visible := Visible(Merge(sampleResult(), sampleServices()))
	var ports []int
	for _, r := range visible {
		ports = append(ports, r.Port)
	}
	if len(ports) != 3 || ports[0] != 22 || ports[1] != 80 || ports[2] != 443 {
		t.Fatalf("visible ports = %v", ports)
	}
}

func TestSummary(t *testing.T) {
	rows := []Row{
		{Port: 22, Status: ops.StatusOpen, Service: "ssh", Version: "SSH-2.0"},
		{Port: 23, Status: ops.StatusClosed},
	}
	want := "22 OPEN ssh SSH-2.0\n23 CLOSED  \n"
	if got := Summary(rows); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestNewDocumentCounts(t *testing.T) {
	rows := Merge(sampleResult(), nil)
	doc := NewDocument("run-1", "example.com", []int{22, 23, 80, 139, 443, 445}, time.Unix(0, 0), 1500*time.Millisecond, rows)
	if doc.Counts != (Counts{Open: 2, Closed: 1, Filtered: 3}) {
		t.Fatalf("counts = %+v", doc.Counts)
	}
	if doc.Ports != "22-23,80,139,443,445" || doc.Duration != 1.5 {
		t.Fatalf("doc = %+v", doc)
	}
	if empty := NewDocument("r", "t", nil, time.Now(), 0, nil); empty.Rows == nil {
		t.Fatal("rows must encode as an empty list")
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	doc := NewDocument("run-1", "example.com", nil, time.Now(), time.Second, Merge(sampleResult(), sampleServices()))
	if err := NewRenderer(&buf, false, true).Render(FormatTable, doc); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"PORT", "22      OPEN", "SSH-2.0-OpenSSH_9.6", "443     FILTERED  https", "2 open, 1 closed, 3 filtered"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	for _, absent := range []string{"23 ", "445", "\x1b["} {
		if strings.Contains(out, absent) {
			t.Errorf("table unexpectedly contains %q:\n%s", absent, out)
		}
	}
}

func TestRenderTableHidesBanners(t *testing.T) {
	var buf bytes.Buffer
	doc := NewDocument("r", "h", nil, time.Now(), 0, Merge(sampleResult(), sampleServices()))
	NewRenderer(&buf, false, false).Table(doc)
	if strings.Contains(buf.String(), "VERSION") || strings.Contains(buf.String(), "OpenSSH_9.6") {
		t.Fatalf("banners shown:\n%s", buf.String())
	}
}

func TestRenderTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	rows := Merge(ops.ScanResult{1: {Port: 1, Status: ops.StatusClosed}}, nil)
	NewRenderer(&buf, false, true).Table(NewDocument("r", "h", []int{1}, time.Now(), 0, rows))
	if !strings.Contains(buf.String(), EmptyMessage) {
		t.Fatalf("missing empty message:\n%s", buf.String())
	}
}

func TestRenderJSONAndYAML(t *testing.T) {
	doc := NewDocument("run-1", "example.com", []int{22, 23}, time.Unix(0, 0), time.Second, Merge(ops.ScanResult{
		22: {Port: 22, Status: ops.StatusOpen, Banner: "SSH-2.0"},
		23: {Port: 23, Status: ops.StatusClosed},
	}, enrich.Services{22: "ssh"}))
	doc.Analysis = "no findings"

	var jsonBuf bytes.Buffer
	if err := NewRenderer(&jsonBuf, false, true).Render(FormatJSON, doc); err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded Document
	if err := json.Unmarshal(jsonBuf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.RunID != "run-1" || len(decoded.Rows) != 2 || decoded.Rows[0].Service != "ssh" || decoded.Analysis != "no findings" {
		t.Fatalf("json document = %+v", decoded)
	}

	var yamlBuf bytes.Buffer
	if err := NewRenderer(&yamlBuf, false, true).Render(FormatYAML, doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	var generic map[string]interface{}
	if err := yaml.Unmarshal(yamlBuf.Bytes(), &generic); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if generic["run_id"] != "run-1" || generic["ports"] != "22-23" {
		t.Fatalf("yaml document = %v", generic)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"table": FormatTable, "JSON": FormatJSON, " yaml ": FormatYAML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, false, true).PrintBanner("scanme.org", []int{22, 80}, 200, "medium")
	out := buf.String()
	for _, want := range []string{"Target:      scanme.org", "Ports:       2", "Concurrency: 200 (profile medium)"} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHTML(t *testing.T) {
	doc := NewDocument("run-html", "lab.internal", []int{22, 23, 443}, time.Now(), 250*time.Millisecond, Merge(ops.ScanResult{
		22:  {Port: 22, Status: ops.StatusOpen, Banner: "SSH-2.0-<script>"},
		23:  {Port: 23, Status: ops.StatusClosed},
		443: {Port: 443, Status: ops.StatusFiltered},
	}, enrich.Services{22: "ssh", 443: "https"}))
	doc.Analysis = "## Findings\nnothing notable"

	var buf bytes.Buffer
	if err := NewRenderer(&buf, false, true).Render(FormatHTML, doc); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"lab.internal", "run-html", "status-open", "status-filtered", "SSH-2.0-&lt;script&gt;", "<p>nothing notable</p>", "250ms", "33.3%"} {
		if !strings.Contains(out, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(out, "status-closed\">") {
		t.Error("closed row rendered without AllRows")
	}

	buf.Reset()
	hr, err := NewHTMLReporter(HTMLConfig{AllRows: true, Theme: "dark"})
	if err != nil {
		t.Fatalf("NewHTMLReporter: %v", err)
	}
	if err := hr.Write(&buf, doc); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "status-closed\">") || !strings.Contains(buf.String(), "#1a1a1a") {
		t.Error("AllRows or dark theme ignored")
	}
}
