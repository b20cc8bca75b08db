package ops

import (
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeHost strips IPv6 brackets and converts internationalised names to
// their ASCII form so the resolver and external tools agree on the target.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return strings.ToLower(host)
	}
	return ascii
}
