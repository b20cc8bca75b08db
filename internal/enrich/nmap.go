// Package enrich merges service names and versions reported by an external
// nmap run into the prober's results. Enrichment is optional: a port's
// OPEN/CLOSED/FILTERED verdict never depends on it.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Ullaakut/nmap/v3"
	"github.com/rs/zerolog"

	"github.com/netcrate/nexa/internal/privileges"
)

// UnknownService is reported for open ports nmap could not identify
const UnknownService = "(unknown)"

// ErrNmapNotFound is returned when no nmap binary can be located
var ErrNmapNotFound = errors.New("nmap binary not found")

// Services maps a port to nmap's description of it
type Services map[int]string

// Enricher looks up service descriptions for a host and port range
type Enricher interface {
	Enrich(ctx context.Context, host, portSpec string) (Services, error)
}

// Nmap runs the nmap binary through github.com/Ullaakut/nmap
type Nmap struct {
	binaryPath string
	privileged bool
	timeout    time.Duration
	log        zerolog.Logger
}

// NewNmap prepares an nmap enricher. An empty binaryPath searches $PATH.
// SYN scanning and OS detection are only requested when pm reports full privileges.
func NewNmap(binaryPath string, pm *privileges.PrivilegeManager, timeout time.Duration, log zerolog.Logger) *Nmap {
	privileged := false
	if pm != nil {
		privileged = pm.IsPrivileged()
	}
	return &Nmap{
		binaryPath: binaryPath,
		privileged: privileged,
		timeout:    timeout,
		log:        log.With().Str("component", "nmap").Logger(),
	}
}

func (n *Nmap) locate() (string, error) {
	name := n.binaryPath
	if name == "" {
		name = "nmap"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNmapNotFound, err)
	}
	return path, nil
}

func (n *Nmap) options(path, host, portSpec string) []nmap.Option {
	opts := []nmap.Option{
		nmap.WithBinaryPath(path),
		nmap.WithTargets(host),
		nmap.WithPorts(portSpec),
		nmap.WithServiceInfo(),
	}
	if n.privileged {
		opts = append(opts, nmap.WithSYNScan(), nmap.WithOSDetection())
	} else {
		opts = append(opts, nmap.WithConnectScan())
	}
	return opts
}

// Enrich runs nmap against host for the given port spec and returns per-port descriptions.
func (n *Nmap) Enrich(ctx context.Context, host, portSpec string) (Services, error) {
	path, err := n.locate()
	if err != nil {
		return nil, err
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	n.log.Debug().
		Str("binary", path).
		Str("host", host).
		Str("ports", portSpec).
		Bool("syn", n.privileged).
		Msg("running nmap")

	scanner, err := nmap.NewScanner(ctx, n.options(path, host, portSpec)...)
	if err != nil {
		return nil, fmt.Errorf("create nmap scanner: %w", err)
	}

	run, warnings, err := scanner.Run()
	if warnings != nil && len(*warnings) > 0 {
		n.log.Warn().Strs("warnings", *warnings).Msg("nmap reported warnings")
	}
	if err != nil {
		return nil, fmt.Errorf("run nmap: %w", err)
	}

	services := ParseRun(run)
	n.log.Debug().Int("ports", len(services)).Msg("nmap finished")
	return services, nil
}

// ParseRun flattens an nmap run into descriptions keyed by port. Ports that
// are not open carry their raw nmap state, e.g. "filtered".
func ParseRun(run *nmap.Run) Services {
	services := make(Services)
	if run == nil {
		return services
	}
	for _, host := range run.Hosts {
		for _, port := range host.Ports {
			services[int(port.ID)] = describe(port)
		}
	}
	return services
}

func describe(port nmap.Port) string {
	if port.State.State != "open" {
		return port.State.State
	}
	var parts []string
	for _, s := range []string{port.Service.Name, port.Service.Product, port.Service.Version, port.Service.ExtraInfo} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return UnknownService
	}
	return strings.Join(parts, " ")
}
