package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/netcrate/nexa/internal/lookup"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("22 OPEN ssh SSH-2.0\n", lookup.Intel{
		DNS:   "example.test has address 192.0.2.10",
		WHOIS: "Registrar: Example",
		HTTP:  "HTTP/1.1 200 OK",
	})
	for _, want := range []string{"22 OPEN ssh SSH-2.0", "Registrar: Example", "example.test has address 192.0.2.10", "HTTP/1.1 200 OK", "remediation and detection"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(strings.ToLower(prompt), "do provide exploit") {
		t.Fatal("prompt asks for offensive content")
	}
}

func TestRunnerPipesPrompt(t *testing.T) {
	r, err := NewRunner("cat", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	out, err := r.Run(context.Background(), "hello analyst")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "hello analyst" {
		t.Fatalf("got %q", out)
	}
}

func TestRunnerQuotedArguments(t *testing.T) {
	r, err := NewRunner(`sh -c "tr a-z A-Z"`, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if len(r.argv) != 3 || r.argv[2] != "tr a-z A-Z" {
		t.Fatalf("argv = %q", r.argv)
	}
	out, err := r.Run(context.Background(), "cve")
	if err != nil || out != "CVE" {
		t.Fatalf("got %q, %v", out, err)
	}

	r, err = NewRunner(`/usr/bin/gemini-cli -p ""`, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if r.argv[0] != "/usr/bin/gemini-cli" || r.argv[1] != "-p" {
		t.Fatalf("argv = %q", r.argv)
	}
}

func TestRunnerErrors(t *testing.T) {
	if _, err := NewRunner("   ", zerolog.Nop()); !errors.Is(err, ErrCommandNotFound) {
		t.Fatalf("empty command: %v", err)
	}

	r, _ := NewRunner("no-such-analysis-binary --flag", zerolog.Nop())
	if _, err := r.Run(context.Background(), "x"); !errors.Is(err, ErrCommandNotFound) {
		t.Fatalf("missing binary: %v", err)
	}

	r, _ = NewRunner(`sh -c "echo broken >&2; exit 3"`, zerolog.Nop())
	_, err := r.Run(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("failing command: %v", err)
	}
}

func TestHighlight(t *testing.T) {
	text := "## Summary\nplain line\nCVE-2023-38408 affects OpenSSH\n"
	if got := Highlight(text, false); got != text {
		t.Fatalf("colourless highlight changed text: %q", got)
	}

	for _, line := range []string{"## Summary", "**Impact**"} {
		if !isHeading(line) {
			t.Errorf("%q should be a heading", line)
		}
	}
	for _, line := range []string{"Remediation: upgrade", "see cve list", "Detection rules", "Vendor advisories"} {
		if !mentionsFinding(line) {
			t.Errorf("%q should be highlighted", line)
		}
	}
	if mentionsFinding("plain line") {
		t.Error("plain line should not be highlighted")
	}
}
