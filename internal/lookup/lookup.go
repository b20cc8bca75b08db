// Package lookup gathers public context about a target (DNS records, WHOIS
// and HTTP response headers) to accompany the port report. Every lookup is
// best effort: a failure leaves its section empty.
package lookup

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/netcrate/nexa/internal/ops"
)

const (
	resolvConf      = "/etc/resolv.conf"
	fallbackServer  = "1.1.1.1:53"
	defaultDNSWait  = 5 * time.Second
	defaultHTTPWait = 8 * time.Second
	whoisWait       = 15 * time.Second
)

// Intel is the text of each lookup, ready to embed in a report or prompt
type Intel struct {
	DNS   string `json:"dns,omitempty" yaml:"dns,omitempty"`
	WHOIS string `json:"whois,omitempty" yaml:"whois,omitempty"`
	HTTP  string `json:"http,omitempty" yaml:"http,omitempty"`
}

// Gatherer runs the lookups for one target
type Gatherer struct {
	resolver   string
	dnsTimeout time.Duration
	whois      string
	client     *http.Client
	schemes    []string
	log        zerolog.Logger
}

// Option customises a Gatherer
type Option func(*Gatherer)

// WithResolver queries addr (host:port) instead of the system resolver
func WithResolver(addr string) Option {
	return func(g *Gatherer) { g.resolver = addr }
}

// WithWhoisCommand replaces the whois binary
func WithWhoisCommand(name string) Option {
	return func(g *Gatherer) { g.whois = name }
}

// WithHTTPClient replaces the client used for header requests
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gatherer) { g.client = c }
}

// WithLogger attaches a logger
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gatherer) { g.log = l.With().Str("component", "lookup").Logger() }
}

// NewGatherer builds a Gatherer using the first nameserver in /etc/resolv.conf
func NewGatherer(opts ...Option) *Gatherer {
	g := &Gatherer{
		resolver:   systemResolver(),
		dnsTimeout: defaultDNSWait,
		whois:      "whois",
		client:     &http.Client{Timeout: defaultHTTPWait},
		schemes:    []string{"https", "http"},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func systemResolver() string {
	conf, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil || len(conf.Servers) == 0 {
		return fallbackServer
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}

// Gather runs every lookup concurrently and waits for all of them
func (g *Gatherer) Gather(ctx context.Context, host string) Intel {
	host = ops.NormalizeHost(host)

	var intel Intel
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		intel.DNS = g.DNS(ctx, host)
		return nil
	})
	eg.Go(func() error {
		intel.WHOIS = g.WHOIS(ctx, host)
		return nil
	})
	eg.Go(func() error {
		intel.HTTP = g.Headers(ctx, host)
		return nil
	})

	_ = eg.Wait()
	return intel
}

// DNS formats the target's records the way the host(1) utility does
func (g *Gatherer) DNS(ctx context.Context, host string) string {
	if ip := net.ParseIP(host); ip != nil {
		arpa, err := dns.ReverseAddr(host)
		if err != nil {
			return ""
		}
		return strings.Join(g.query(ctx, arpa, dns.TypePTR), "\n")
	}

	var lines []string
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA, dns.TypeMX, dns.TypeNS, dns.TypeTXT} {
		lines = append(lines, g.query(ctx, host, qtype)...)
	}
	return strings.Join(lines, "\n")
}

func (g *Gatherer) query(ctx context.Context, name string, qtype uint16) []string {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)

	c := &dns.Client{Timeout: g.dnsTimeout}
	in, _, err := c.ExchangeContext(ctx, m, g.resolver)
	if err != nil {
		g.log.Debug().Err(err).Str("name", name).Str("type", dns.TypeToString[qtype]).Msg("dns query failed")
		return nil
	}
	if in.Rcode != dns.RcodeSuccess {
		g.log.Debug().Str("name", name).Str("rcode", dns.RcodeToString[in.Rcode]).Msg("dns query rejected")
		return nil
	}

	var lines []string
	for _, rr := range in.Answer {
		if line := describeRR(rr); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func describeRR(rr dns.RR) string {
	owner := strings.TrimSuffix(rr.Header().Name, ".")
	switch r := rr.(type) {
	case *dns.A:
		return fmt.Sprintf("%s has address %s", owner, r.A)
	case *dns.AAAA:
		return fmt.Sprintf("%s has IPv6 address %s", owner, r.AAAA)
	case *dns.CNAME:
		return fmt.Sprintf("%s is an alias for %s", owner, r.Target)
	case *dns.MX:
		return fmt.Sprintf("%s mail is handled by %d %s", owner, r.Preference, r.Mx)
	case *dns.NS:
		return fmt.Sprintf("%s name server %s", owner, r.Ns)
	case *dns.TXT:
		return fmt.Sprintf("%s descriptive text %q", owner, strings.Join(r.Txt, ""))
	case *dns.PTR:
		return fmt.Sprintf("%s domain name pointer %s", owner, r.Ptr)
	default:
		return ""
	}
}

// WHOIS shells out to the whois utility; a missing binary yields ""
func (g *Gatherer) WHOIS(ctx context.Context, host string) string {
	path, err := exec.LookPath(g.whois)
	if err != nil {
		g.log.Debug().Err(err).Msg("whois unavailable")
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, whoisWait)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, host).Output()
	if err != nil {
		g.log.Debug().Err(err).Str("host", host).Msg("whois failed")
	}
	return strings.TrimSpace(string(out))
}

// Headers sends HEAD to https://host, then http://host, and renders the first answer
func (g *Gatherer) Headers(ctx context.Context, host string) string {
	for _, scheme := range g.schemes {
		url := scheme + "://" + host
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			g.log.Debug().Err(err).Str("url", url).Msg("bad header request")
			continue
		}
		resp, err := g.client.Do(req)
		if err != nil {
			g.log.Debug().Err(err).Str("url", url).Msg("header request failed")
			continue
		}
		resp.Body.Close()
		return formatHeaders(resp)
	}
	return ""
}

func formatHeaders(resp *http.Response) string {
	names := make([]string, 0, len(resp.Header))
	for name := range resp.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{resp.Proto + " " + resp.Status}
	for _, name := range names {
		for _, v := range resp.Header[name] {
			lines = append(lines, name+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}
