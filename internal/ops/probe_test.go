package ops

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"
)

// listen starts a loopback listener and hands every accepted conn to handle.
func listen(t *testing.T, handle func(net.Conn)) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()
	return l.Addr().(*net.TCPAddr).Port
}

// closedPort returns a loopback port that nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	time.Sleep(20 * time.Millisecond)
	return port
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type fakeDialer struct {
	delay time.Duration
	err   error
}

func (d fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, &net.OpError{Op: "dial", Net: network, Err: timeoutErr{}}
		}
	}
	return nil, d.err
}

func refusedErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
}

func TestProbe_ClosedPortsAreRefused(t *testing.T) {
	p := NewProber()
	for _, port := range []int{closedPort(t), closedPort(t)} {
		status, banner := p.Probe(context.Background(), "127.0.0.1", port, time.Second)
		if status != StatusClosed {
			t.Fatalf("port %d: expected CLOSED, got %s", port, status)
		}
		if banner != "" {
			t.Fatalf("port %d: expected empty banner, got %q", port, banner)
		}
	}
}

func TestProbe_HTTPBannerCollapsed(t *testing.T) {
	requests := make(chan string, 1)
	port := listen(t, func(c net.Conn) {
		defer c.Close()
		line, _ := bufio.NewReader(c).ReadString('\n')
		requests <- line
		_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nServer: X\r\n\r\n")
	})

	p := NewProber(WithRequestPorts(port))
	status, banner := p.Probe(context.Background(), "127.0.0.1", port, time.Second)
	if status != StatusOpen {
		t.Fatalf("expected OPEN, got %s", status)
	}
	if banner != "HTTP/1.1 200 OK Server: X" {
		t.Fatalf("unexpected banner %q", banner)
	}

	select {
	case line := <-requests:
		if line != "GET / HTTP/1.0\r\n" {
			t.Fatalf("unexpected request line %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("server never saw the request")
	}
}

// pipeDialer hands out the client half of a net.Pipe and passes the server half to serve.
type pipeDialer struct {
	serve func(net.Conn)
}

func (d pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	client, server := net.Pipe()
	go d.serve(server)
	return client, nil
}

func TestProbe_DefaultRequestPorts(t *testing.T) {
	requests := make(chan string, 1)
	p := NewProber(WithBannerTimeout(200*time.Millisecond), WithDialer(pipeDialer{serve: func(c net.Conn) {
		defer c.Close()
		line, _ := bufio.NewReader(c).ReadString('\n')
		requests <- line
		_, _ = io.WriteString(c, "HTTP/1.0 404 Not Found\r\n")
	}}))

	status, banner := p.Probe(context.Background(), "192.0.2.1", 80, time.Second)
	if status != StatusOpen || banner != "HTTP/1.0 404 Not Found" {
		t.Fatalf("got %s %q", status, banner)
	}
	select {
	case line := <-requests:
		if line != "GET / HTTP/1.0\r\n" {
			t.Fatalf("unexpected request line %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("no request sent on port 80")
	}
}

func TestProbe_FailedRequestWriteStaysOpen(t *testing.T) {
	p := NewProber(WithBannerTimeout(100*time.Millisecond), WithDialer(pipeDialer{serve: func(c net.Conn) {
		_ = c.Close()
	}}))

	status, banner := p.Probe(context.Background(), "192.0.2.1", 80, time.Second)
	if status != StatusOpen {
		t.Fatalf("expected OPEN after failed write, got %s", status)
	}
	if banner != "" {
		t.Fatalf("expected empty banner, got %q", banner)
	}
}

func TestProbe_GreetingWithoutRequest(t *testing.T) {
	port := listen(t, func(c net.Conn) {
		defer c.Close()
		_, _ = io.WriteString(c, "SSH-2.0-OpenSSH_9.6\r\n")
		time.Sleep(200 * time.Millisecond)
	})

	status, banner := NewProber().Probe(context.Background(), "127.0.0.1", port, time.Second)
	if status != StatusOpen || banner != "SSH-2.0-OpenSSH_9.6" {
		t.Fatalf("got %s %q", status, banner)
	}
}

func TestProbe_SilentServiceOpenAndReleased(t *testing.T) {
	released := make(chan error, 1)
	port := listen(t, func(c net.Conn) {
		defer c.Close()
		_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, err := c.Read(make([]byte, 1))
		released <- err
	})

	p := NewProber(WithBannerTimeout(100 * time.Millisecond))
	start := time.Now()
	status, banner := p.Probe(context.Background(), "127.0.0.1", port, time.Second)
	if status != StatusOpen {
		t.Fatalf("expected OPEN, got %s", status)
	}
	if banner != "" {
		t.Fatalf("expected empty banner, got %q", banner)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("banner read not bounded: %v", elapsed)
	}

	select {
	case err := <-released:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF from closed client, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("prober did not release the connection")
	}
}

func TestProbe_BannerBounded(t *testing.T) {
	port := listen(t, func(c net.Conn) {
		defer c.Close()
		_, _ = c.Write([]byte(strings.Repeat("A", MaxBannerBytes*2)))
		time.Sleep(200 * time.Millisecond)
	})

	_, banner := NewProber().Probe(context.Background(), "127.0.0.1", port, time.Second)
	if len(banner) == 0 || len(banner) > MaxBannerBytes {
		t.Fatalf("banner length %d outside (0, %d]", len(banner), MaxBannerBytes)
	}
}

func TestProbe_DialTimeoutIsFiltered(t *testing.T) {
	p := NewProber(WithDialer(fakeDialer{delay: time.Minute}))
	start := time.Now()
	status, banner := p.Probe(context.Background(), "192.0.2.1", 9999, 200*time.Millisecond)
	if status != StatusFiltered || banner != "" {
		t.Fatalf("got %s %q", status, banner)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout not honoured: %v", elapsed)
	}
}

func TestProbe_BlackholeIsFiltered(t *testing.T) {
	if testing.Short() {
		t.Skip("touches the network")
	}
	start := time.Now()
	status, _ := NewProber().Probe(context.Background(), "10.255.255.1", 9999, 500*time.Millisecond)
	if status != StatusFiltered {
		t.Fatalf("expected FILTERED, got %s", status)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("dial outlived its timeout: %v", elapsed)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status Status
		reason string
	}{
		{"refused", refusedErr(), StatusClosed, "refused"},
		{"timeout", &net.OpError{Op: "dial", Net: "tcp", Err: timeoutErr{}}, StatusFiltered, "timeout"},
		{"deadline", context.DeadlineExceeded, StatusFiltered, "timeout"},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}, StatusFiltered, "resolve"},
		{"unreachable", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.EHOSTUNREACH)}, StatusFiltered, "unreachable"},
		{"other", errors.New("boom"), StatusFiltered, "other"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, reason := Classify(tc.err)
			if status != tc.status || reason != tc.reason {
				t.Fatalf("got (%s, %s) want (%s, %s)", status, reason, tc.status, tc.reason)
			}
		})
	}
}

func TestCleanBanner(t *testing.T) {
	cases := map[string]struct {
		in   []byte
		want string
	}{
		"empty":      {nil, ""},
		"crlf runs":  {[]byte("a\r\n\r\nb\n"), "a b"},
		"trim":       {[]byte("  220 ready \r\n"), "220 ready"},
		"invalid":    {[]byte{'o', 'k', 0xff, 0xfe}, "ok\uFFFD\uFFFD"},
		"tabs stay":  {[]byte("a\tb"), "a\tb"},
		"only break": {[]byte("\r\n"), ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := CleanBanner(tc.in); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}
