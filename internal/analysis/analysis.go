// Package analysis hands the scan summary and lookup results to an external
// language-model CLI for a defensive write-up, and colours its answer.
package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"text/template"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"

	"github.com/netcrate/nexa/internal/lookup"
)

// ErrCommandNotFound is returned when the analysis command is empty or cannot be found.
var ErrCommandNotFound = errors.New("analysis command not found")

var promptTemplate = template.Must(template.New("prompt").Parse(`TASK: You are a security analyst producing a concise, defensive assessment for the owner of this host.
Analyze the target based on the port scan, WHOIS, DNS and HTTP headers below.

PORTS (port status service version):
{{.Summary}}
WHOIS:
{{.Intel.WHOIS}}

DNS:
{{.Intel.DNS}}

HTTP:
{{.Intel.HTTP}}

For each exposed service, list likely CVE IDs and vendor advisories (cite only), explain the high-level impact, and give remediation and detection recommendations.
Summarize the WHOIS and DNS information (hosting, ASN, registrar) and any public signals that look relevant.
Do not include exploit code, payloads or step-by-step compromise instructions.
Keep the output short enough for a SOC ticket.
`))

// BuildPrompt renders the analysis request for a target
func BuildPrompt(summary string, intel lookup.Intel) string {
	var b strings.Builder
	_ = promptTemplate.Execute(&b, struct {
		Summary string
		Intel   lookup.Intel
	}{summary, intel})
	return b.String()
}

// Runner pipes prompts into an external command
type Runner struct {
	argv []string
	log  zerolog.Logger
}

// NewRunner parses command with shell quoting rules, e.g. `/usr/bin/gemini-cli -p ""`
func NewRunner(command string, log zerolog.Logger) (*Runner, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse analysis command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrCommandNotFound)
	}
	return &Runner{argv: argv, log: log.With().Str("component", "analysis").Logger()}, nil
}

// Run writes prompt to the command's stdin and returns its stdout
func (r *Runner) Run(ctx context.Context, prompt string) (string, error) {
	path, err := exec.LookPath(r.argv[0])
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrCommandNotFound, r.argv[0])
	}

	cmd := exec.CommandContext(ctx, path, r.argv[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debug().Str("command", path).Int("prompt_bytes", len(prompt)).Msg("running analysis")
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.String(), fmt.Errorf("analysis command failed: %w: %s", err, msg)
		}
		return stdout.String(), fmt.Errorf("analysis command failed: %w", err)
	}
	return stdout.String(), nil
}

var keywords = []string{"vulnerabilities", "impact", "recommendation", "cve", "advisories", "remediation", "detection"}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	keywordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Highlight colours headings cyan and lines that mention findings yellow
func Highlight(text string, color bool) string {
	if !color {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
		case isHeading(trimmed):
			lines[i] = headingStyle.Render(line)
		case mentionsFinding(line):
			lines[i] = keywordStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

func isHeading(line string) bool {
	return strings.HasPrefix(line, "**") || strings.HasPrefix(line, "#")
}

func mentionsFinding(line string) bool {
	lower := strings.ToLower(line)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
