// Package compliance checks scan targets and limits against a policy before
// any connection is made.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"go4.org/netipx"
)

// Policy violations reported by Checker.
var (
	ErrBlockedTarget      = errors.New("target address is blocked by policy")
	ErrPublicTarget       = errors.New("target is a public address")
	ErrConcurrencyTooHigh = errors.New("concurrency exceeds policy limit")
	ErrUnresolvable       = errors.New("target does not resolve")
)

// Policy defines compliance policies
type Policy struct {
	AllowPublic    bool     `yaml:"allow_public"`
	BlockedRanges  []string `yaml:"blocked_ranges"`
	MaxConcurrency int      `yaml:"max_concurrency"`
}

// Resolver looks up the addresses behind a host name; *net.Resolver satisfies it
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Verdict describes a checked target
type Verdict struct {
	Addrs  []netip.Addr
	Public bool
}

// Checker handles compliance checking
type Checker struct {
	policy   Policy
	blocked  *netipx.IPSet
	private  *netipx.IPSet
	resolver Resolver
}

// NewChecker creates a new compliance checker
func NewChecker(policy Policy) (*Checker, error) {
	blocked, err := buildSet(policy.BlockedRanges)
	if err != nil {
		return nil, fmt.Errorf("blocked ranges: %w", err)
	}
	private, err := buildSet(privateRanges)
	if err != nil {
		return nil, err
	}
	return &Checker{policy: policy, blocked: blocked, private: private, resolver: net.DefaultResolver}, nil
}

// WithResolver swaps the resolver used for host names
func (c *Checker) WithResolver(r Resolver) *Checker {
	c.resolver = r
	return c
}

var privateRanges = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

func buildSet(ranges []string) (*netipx.IPSet, error) {
	var b netipx.IPSetBuilder
	for _, r := range ranges {
		if prefix, err := netip.ParsePrefix(r); err == nil {
			b.AddPrefix(prefix.Masked())
			continue
		}
		if ipr, err := netipx.ParseIPRange(r); err == nil {
			b.AddRange(ipr)
			continue
		}
		addr, err := netip.ParseAddr(r)
		if err != nil {
			return nil, fmt.Errorf("invalid range %q", r)
		}
		b.Add(addr)
	}
	return b.IPSet()
}

// CheckTarget resolves target and validates every address it maps to.
// Public targets are an error only when the policy disallows them.
func (c *Checker) CheckTarget(ctx context.Context, target string) (Verdict, error) {
	var v Verdict

	if addr, err := netip.ParseAddr(target); err == nil {
		v.Addrs = []netip.Addr{addr.Unmap()}
	} else {
		addrs, err := c.resolver.LookupNetIP(ctx, "ip", target)
		if err != nil || len(addrs) == 0 {
			return v, fmt.Errorf("%w: %s", ErrUnresolvable, target)
		}
		for _, a := range addrs {
			v.Addrs = append(v.Addrs, a.Unmap())
		}
	}

	for _, addr := range v.Addrs {
		if c.blocked.Contains(addr) {
			return v, fmt.Errorf("%w: %s", ErrBlockedTarget, addr)
		}
		if !c.IsPrivate(addr) {
			v.Public = true
		}
	}
	if v.Public && !c.policy.AllowPublic {
		return v, fmt.Errorf("%w: %s", ErrPublicTarget, target)
	}
	return v, nil
}

// CheckConcurrency validates the requested number of simultaneous probes
func (c *Checker) CheckConcurrency(n int) error {
	if c.policy.MaxConcurrency > 0 && n > c.policy.MaxConcurrency {
		return fmt.Errorf("%w: %d > %d", ErrConcurrencyTooHigh, n, c.policy.MaxConcurrency)
	}
	return nil
}

// IsPrivate reports whether addr is loopback, link-local or in a private range
func (c *Checker) IsPrivate(addr netip.Addr) bool {
	return c.private.Contains(addr.Unmap())
}

// GetDefaultPolicy returns the default compliance policy
func GetDefaultPolicy() Policy {
	return Policy{
		AllowPublic: true,
		BlockedRanges: []string{
			"0.0.0.0/8",
			"224.0.0.0/4",
			"240.0.0.0/4",
			"ff00::/8",
		},
		MaxConcurrency: 5000,
	}
}
