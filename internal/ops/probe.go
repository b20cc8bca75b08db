package ops

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// DefaultBannerTimeout is the read window after a successful connect
const DefaultBannerTimeout = 900 * time.Millisecond

// requestPorts speak a plaintext request/response protocol and stay silent until asked.
var requestPorts = map[int]bool{80: true, 443: true, 8000: true, 8080: true}

// Dialer opens outbound connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober runs the connect-then-banner sequence against one port.
type Prober struct {
	dialer        Dialer
	bannerTimeout time.Duration
	requestPorts  map[int]bool
	log           zerolog.Logger
}

// ProberOption customises a Prober
type ProberOption func(*Prober)

// WithDialer replaces the network dialer
func WithDialer(d Dialer) ProberOption {
	return func(p *Prober) { p.dialer = d }
}

// WithBannerTimeout sets the read window used after connect
func WithBannerTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.bannerTimeout = d
		}
	}
}

// WithRequestPorts overrides which ports receive an HTTP request before the read
func WithRequestPorts(ports ...int) ProberOption {
	return func(p *Prober) {
		p.requestPorts = make(map[int]bool, len(ports))
		for _, port := range ports {
			p.requestPorts[port] = true
		}
	}
}

// WithProberLogger attaches a logger for per-port debug output
func WithProberLogger(l zerolog.Logger) ProberOption {
	return func(p *Prober) { p.log = l.With().Str("component", "prober").Logger() }
}

// NewProber creates a prober with the default dialer and banner window
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		dialer:        &net.Dialer{},
		bannerTimeout: DefaultBannerTimeout,
		requestPorts:  requestPorts,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe connects to host:port and classifies the port. It never returns an error:
// every failure is folded into the status.
func (p *Prober) Probe(ctx context.Context, host string, port int, timeout time.Duration) (Status, string) {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		status, reason := Classify(err)
		p.log.Debug().
			Int("port", port).
			Str("status", string(status)).
			Str("reason", reason).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("connect failed")
		return status, ""
	}
	defer conn.Close()

	if p.requestPorts[port] {
		if res := p.sendRequest(conn, host); res.kind != stepOK {
			p.log.Debug().Int("port", port).Str("step", "request").Str("result", res.String()).Msg("probe write skipped")
		}
	}

	data, res := p.readBanner(conn)
	if res.kind != stepOK {
		p.log.Debug().Int("port", port).Str("step", "banner").Str("result", res.String()).Msg("no banner")
	}

	banner := CleanBanner(data)
	p.log.Debug().Int("port", port).Int("banner_len", len(banner)).Msg("port open")
	return StatusOpen, banner
}

type stepKind int

const (
	stepOK stepKind = iota
	stepTimeout
	stepError
)

// stepResult reports how a best-effort I/O step ended
type stepResult struct {
	kind stepKind
	err  error
}

func (r stepResult) String() string {
	switch r.kind {
	case stepOK:
		return "ok"
	case stepTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("error: %v", r.err)
	}
}

func resultOf(err error) stepResult {
	if err == nil {
		return stepResult{kind: stepOK}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return stepResult{kind: stepTimeout, err: err}
	}
	return stepResult{kind: stepError, err: err}
}

func (p *Prober) sendRequest(conn net.Conn, host string) stepResult {
	if err := conn.SetWriteDeadline(time.Now().Add(p.bannerTimeout)); err != nil {
		return resultOf(err)
	}
	req := "GET / HTTP/1.0\r\nHost: " + host + "\r\n\r\n"
	_, err := conn.Write([]byte(req))
	return resultOf(err)
}

func (p *Prober) readBanner(conn net.Conn) ([]byte, stepResult) {
	if err := conn.SetReadDeadline(time.Now().Add(p.bannerTimeout)); err != nil {
		return nil, resultOf(err)
	}
	buf := make([]byte, MaxBannerBytes)
	n, err := conn.Read(buf)
	if n > 0 {
		// a short read followed by EOF still counts as a banner
		return buf[:n], stepResult{kind: stepOK}
	}
	if err == nil {
		return nil, stepResult{kind: stepOK}
	}
	return nil, resultOf(err)
}

// CleanBanner decodes raw bytes leniently, folds CR/LF runs into one space and trims.
func CleanBanner(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(data))
	inBreak := false
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r == '\r' || r == '\n' {
			if !inBreak {
				b.WriteByte(' ')
				inBreak = true
			}
			continue
		}
		inBreak = false
		// DecodeRune yields RuneError with size 1 for each invalid byte
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// Classify maps a dial error to a port status plus a finer-grained reason for logs.
func Classify(err error) (Status, string) {
	if err == nil {
		return StatusOpen, ""
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return StatusClosed, "refused"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return StatusFiltered, "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusFiltered, "timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return StatusFiltered, "resolve"
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return StatusFiltered, "unreachable"
	}
	// some platforms only surface the refusal in the message
	if strings.Contains(err.Error(), "connection refused") {
		return StatusClosed, "refused"
	}
	return StatusFiltered, "other"
}
