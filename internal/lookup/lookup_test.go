package lookup

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// startDNS serves a tiny zone for example.test on a loopback UDP port.
func startDNS(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	records := map[uint16][]string{
		dns.TypeA:   {"example.test. 300 IN A 192.0.2.10"},
		dns.TypeMX:  {"example.test. 300 IN MX 10 mail.example.test."},
		dns.TypeTXT: {`example.test. 300 IN TXT "v=spf1 -all"`},
		dns.TypePTR: {"10.2.0.192.in-addr.arpa. 300 IN PTR example.test."},
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		for _, s := range records[r.Question[0].Qtype] {
			rr, err := dns.NewRR(s)
			if err != nil {
				t.Errorf("bad fixture %q: %v", s, err)
				continue
			}
			m.Answer = append(m.Answer, rr)
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestDNS(t *testing.T) {
	g := NewGatherer(WithResolver(startDNS(t)))

	got := g.DNS(context.Background(), "example.test")
	want := strings.Join([]string{
		"example.test has address 192.0.2.10",
		"example.test mail is handled by 10 mail.example.test.",
		`example.test descriptive text "v=spf1 -all"`,
	}, "\n")
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}

	if got := g.DNS(context.Background(), "192.0.2.10"); got != "10.2.0.192.in-addr.arpa domain name pointer example.test." {
		t.Fatalf("reverse lookup = %q", got)
	}
}

func TestDNS_UnreachableResolver(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := pc.LocalAddr().String()
	pc.Close()

	g := NewGatherer(WithResolver(addr))
	g.dnsTimeout = 200 * time.Millisecond
	if got := g.DNS(context.Background(), "example.test"); got != "" {
		t.Fatalf("expected empty section, got %q", got)
	}
}

func TestHeadersFallsBackToHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s", r.Method)
		}
		w.Header().Set("Server", "unit")
		w.Header().Set("X-Frame-Options", "DENY")
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	got := NewGatherer().Headers(context.Background(), host)
	for _, want := range []string{"HTTP/1.1 200 OK", "Server: unit", "X-Frame-Options: DENY"} {
		if !strings.Contains(got, want) {
			t.Errorf("headers missing %q:\n%s", want, got)
		}
	}
	if !strings.HasPrefix(got, "HTTP/1.1 200 OK\n") {
		t.Fatalf("status line must come first:\n%s", got)
	}
}

func TestHeadersNothingListening(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	host := l.Addr().String()
	l.Close()

	if got := NewGatherer().Headers(context.Background(), host); got != "" {
		t.Fatalf("expected empty section, got %q", got)
	}
}

func TestWHOIS(t *testing.T) {
	g := NewGatherer(WithWhoisCommand("echo"))
	if got := g.WHOIS(context.Background(), "example.test"); got != "example.test" {
		t.Fatalf("got %q", got)
	}

	g = NewGatherer(WithWhoisCommand("definitely-not-a-whois-binary"))
	if got := g.WHOIS(context.Background(), "example.test"); got != "" {
		t.Fatalf("missing binary should give empty section, got %q", got)
	}
}

func TestGather(t *testing.T) {
	g := NewGatherer(WithResolver(startDNS(t)), WithWhoisCommand("echo"))
	g.schemes = nil

	intel := g.Gather(context.Background(), "Example.TEST")
	if !strings.Contains(intel.DNS, "192.0.2.10") {
		t.Fatalf("DNS = %q", intel.DNS)
	}
	if intel.WHOIS != "example.test" {
		t.Fatalf("WHOIS = %q", intel.WHOIS)
	}
	if intel.HTTP != "" {
		t.Fatalf("HTTP = %q", intel.HTTP)
	}
}
