package privileges

import (
	"fmt"
	"os"
	"runtime"
	"sort"
)

// PrivilegeLevel represents what the external scanner may be asked to do
type PrivilegeLevel int

const (
	PrivilegeLevelFull     PrivilegeLevel = iota // Raw sockets: SYN scan and OS detection
	PrivilegeLevelDegraded                       // Connect scan only
)

func (p PrivilegeLevel) String() string {
	switch p {
	case PrivilegeLevelFull:
		return "full"
	case PrivilegeLevelDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Capability constants
const (
	CapabilityRawSocket   = "raw_socket"
	CapabilitySYN         = "syn_scan"
	CapabilityOSDetection = "os_detection"
	CapabilityTCPConnect  = "tcp_connect"
)

// PrivilegeManager records which scan techniques the current process can use
type PrivilegeManager struct {
	level           PrivilegeLevel
	capabilities    map[string]bool
	fallbackReasons []string
	isRoot          bool
}

// NewPrivilegeManager detects the current privileges
func NewPrivilegeManager() *PrivilegeManager {
	pm := &PrivilegeManager{capabilities: make(map[string]bool)}
	pm.detect(checkRoot(), canOpenRawSocket)
	return pm
}

// detect fills capabilities from the root check and a raw socket probe
func (pm *PrivilegeManager) detect(isRoot bool, rawSocket func() error) {
	pm.isRoot = isRoot
	pm.capabilities[CapabilityTCPConnect] = true

	raw := false
	if err := rawSocket(); err != nil {
		pm.fallbackReasons = append(pm.fallbackReasons, fmt.Sprintf("raw socket creation failed: %v", err))
	} else {
		raw = true
	}
	pm.capabilities[CapabilityRawSocket] = raw

	// nmap needs both root and raw sockets for -sS and -O
	full := raw && isRoot
	pm.capabilities[CapabilitySYN] = full
	pm.capabilities[CapabilityOSDetection] = full

	if full {
		pm.level = PrivilegeLevelFull
		return
	}
	pm.level = PrivilegeLevelDegraded
	if !isRoot {
		pm.fallbackReasons = append(pm.fallbackReasons, "not running as root")
	}
	pm.fallbackReasons = append(pm.fallbackReasons, "SYN scan unavailable - using TCP connect")
}

func checkRoot() bool {
	switch runtime.GOOS {
	case "windows":
		return false
	default:
		return os.Geteuid() == 0
	}
}

// GetLevel returns the current privilege level
func (pm *PrivilegeManager) GetLevel() PrivilegeLevel {
	return pm.level
}

// HasCapability checks if a specific capability is available
func (pm *PrivilegeManager) HasCapability(capability string) bool {
	return pm.capabilities[capability]
}

// GetFallbackReasons returns why capabilities were downgraded
func (pm *PrivilegeManager) GetFallbackReasons() []string {
	return pm.fallbackReasons
}

// GetAvailableCapabilities returns the usable capabilities, sorted
func (pm *PrivilegeManager) GetAvailableCapabilities() []string {
	var available []string
	for capability, ok := range pm.capabilities {
		if ok {
			available = append(available, capability)
		}
	}
	sort.Strings(available)
	return available
}

// IsPrivileged reports whether full capabilities are available
func (pm *PrivilegeManager) IsPrivileged() bool {
	return pm.level == PrivilegeLevelFull
}
