package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v2"
)

// EmptyMessage is printed when no row survives the Visible filter
const EmptyMessage = "[!] No open or relevant filtered ports found."

// Format selects how a Document is written
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatHTML  Format = "html"
)

// ParseFormat validates a user supplied format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json, yaml or html)", s)
	}
}

// ColorEnabled reports whether f is a terminal that should get ANSI colours
func ColorEnabled(f *os.File, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Renderer writes reports to a single writer
type Renderer struct {
	w           io.Writer
	color       bool
	showBanners bool

	title    lipgloss.Style
	header   lipgloss.Style
	open     lipgloss.Style
	filtered lipgloss.Style
	closed   lipgloss.Style
	dim      lipgloss.Style
}

// NewRenderer builds a renderer. With color false every style is a no-op.
func NewRenderer(w io.Writer, color, showBanners bool) *Renderer {
	lr := lipgloss.NewRenderer(w)
	return &Renderer{
		w:           w,
		color:       color,
		showBanners: showBanners,
		title:       lr.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		header:      lr.NewStyle().Bold(true).Underline(true),
		open:        lr.NewStyle().Foreground(lipgloss.Color("10")),
		filtered:    lr.NewStyle().Foreground(lipgloss.Color("11")),
		closed:      lr.NewStyle().Foreground(lipgloss.Color("9")),
		dim:         lr.NewStyle().Faint(true),
	}
}

func (r *Renderer) paint(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

// Render writes doc in the requested format
func (r *Renderer) Render(format Format, doc Document) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(r.w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case FormatYAML:
		data, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		_, err = r.w.Write(data)
		return err
	case FormatHTML:
		hr, err := NewHTMLReporter(HTMLConfig{})
		if err != nil {
			return err
		}
		return hr.Write(r.w, doc)
	case FormatTable, "":
		r.Table(doc)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// Table prints the relevant rows of doc followed by its counts
func (r *Renderer) Table(doc Document) {
	rows := Visible(doc.Rows)

	fmt.Fprintln(r.w, r.paint(r.title, fmt.Sprintf("Scan Results for %s", doc.Target)))
	fmt.Fprintln(r.w)

	if len(rows) == 0 {
		fmt.Fprintln(r.w, EmptyMessage)
		return
	}

	head := fmt.Sprintf("%-7s %-9s %-32s", "PORT", "STATUS", "SERVICE")
	if r.showBanners {
		head += " VERSION"
	}
	fmt.Fprintln(r.w, r.paint(r.header, head))

	for _, row := range rows {
		status := fmt.Sprintf("%-9s", row.Status)
		switch row.Status {
		case "OPEN":
			status = r.paint(r.open, status)
		case "FILTERED":
			status = r.paint(r.filtered, status)
		default:
			status = r.paint(r.closed, status)
		}

		service := row.Service
		if service == "" {
			service = "-"
		}
		line := fmt.Sprintf("%-7d %s %-32s", row.Port, status, service)
		if r.showBanners && row.Version != "" {
			line += " " + r.paint(r.dim, row.Version)
		}
		fmt.Fprintln(r.w, strings.TrimRight(line, " "))
	}

	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "%d open, %d closed, %d filtered in %.1fs\n",
		doc.Counts.Open, doc.Counts.Closed, doc.Counts.Filtered, doc.Duration)
}

// Section prints a titled block of free text, used for lookups and analysis
func (r *Renderer) Section(title, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, r.paint(r.title, "== "+title+" =="))
	fmt.Fprintln(r.w, body)
}
