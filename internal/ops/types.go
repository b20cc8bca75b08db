package ops

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the reachability classification of a single port
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusClosed   Status = "CLOSED"
	StatusFiltered Status = "FILTERED"
)

// MaxBannerBytes bounds how much a service may send us before we stop reading.
const MaxBannerBytes = 4096

// Validation errors returned by ScanRequest.Validate.
var (
	ErrNoHost         = errors.New("no target host specified")
	ErrInvalidPort    = errors.New("port out of range")
	ErrDuplicatePort  = errors.New("duplicate port")
	ErrBadConcurrency = errors.New("concurrency must be positive")
	ErrBadTimeout     = errors.New("timeout must be positive")
)

// ScanRequest describes one scan invocation. It is not modified after Validate.
type ScanRequest struct {
	Host        string        `json:"host" yaml:"host"`
	Ports       []int         `json:"ports" yaml:"ports"`
	Concurrency int           `json:"concurrency" yaml:"concurrency"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// Validate checks the request invariants. Ports may be unsorted but must be distinct.
func (r ScanRequest) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return ErrNoHost
	}
	if r.Concurrency < 1 {
		return fmt.Errorf("%w: %d", ErrBadConcurrency, r.Concurrency)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("%w: %v", ErrBadTimeout, r.Timeout)
	}
	seen := make(map[int]struct{}, len(r.Ports))
	for _, p := range r.Ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPort, p)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicatePort, p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// PortOutcome is the final verdict for one port. Banner is only ever set on open ports.
type PortOutcome struct {
	Port   int    `json:"port" yaml:"port"`
	Status Status `json:"status" yaml:"status"`
	Banner string `json:"banner,omitempty" yaml:"banner,omitempty"`
}

// ScanResult maps every requested port to its outcome
type ScanResult map[int]PortOutcome

// Ports returns the scanned ports in ascending order
func (r ScanResult) Ports() []int {
	ports := make([]int, 0, len(r))
	for p := range r {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

// Count returns how many ports ended in the given status
func (r ScanResult) Count(s Status) int {
	n := 0
	for _, o := range r {
		if o.Status == s {
			n++
		}
	}
	return n
}
