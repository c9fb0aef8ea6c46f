// Package baseline holds operator-declared known-good artifacts.
//
// Accounts, script paths, and IPs registered here are expected operator
// infrastructure: findings that match are marked suppressed instead of
// being dropped, so the report still shows what was excluded and why.
//
// Registration happens once at startup, before any concurrent scanning;
// the lookups themselves are read-only.
package baseline

import (
	"net"
	"strings"
)

// defaultKnownCIDRs are address ranges that never count as remote attack
// sources: private ranges and loopback/link-local.
var defaultKnownCIDRs = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",
	"fe80::/10",
}

var (
	defaultNets   []*net.IPNet
	extraNets     []*net.IPNet
	knownAccounts []string
	knownPaths    []string
)

func init() {
	for _, cidr := range defaultKnownCIDRs {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			defaultNets = append(defaultNets, n)
		}
	}
}

// AddKnownAccount registers an account name as expected. Matching is
// case-insensitive; a "DOMAIN\name" finding matches a bare "name" entry.
func AddKnownAccount(name string) {
	name = strings.TrimSpace(name)
	if name != "" {
		knownAccounts = append(knownAccounts, strings.ToLower(name))
	}
}

// IsKnownAccount reports whether the account name is registered as expected.
func IsKnownAccount(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	// Strip a DOMAIN\ or MACHINE\ prefix for the comparison.
	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}
	for _, k := range knownAccounts {
		if name == k {
			return true
		}
	}
	return false
}

// AddKnownPath registers a directory or file path prefix as trusted
// automation. Script blocks executed from beneath it are suppressed.
func AddKnownPath(path string) {
	path = strings.TrimSpace(path)
	if path != "" {
		knownPaths = append(knownPaths, strings.ToLower(path))
	}
}

// MatchKnownPath reports whether the path falls under a registered prefix.
// Comparison is case-insensitive; Windows paths are.
func MatchKnownPath(path string) bool {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	for _, prefix := range knownPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AddKnownIP registers an additional IP address or CIDR as known
// infrastructure. Accepts both bare IPs (treated as a host route) and
// CIDR notation.
func AddKnownIP(ipOrCIDR string) {
	ipOrCIDR = strings.TrimSpace(ipOrCIDR)
	if ipOrCIDR == "" {
		return
	}
	if strings.Contains(ipOrCIDR, "/") {
		_, n, err := net.ParseCIDR(ipOrCIDR)
		if err == nil {
			extraNets = append(extraNets, n)
		}
		return
	}
	ip := net.ParseIP(ipOrCIDR)
	if ip == nil {
		return
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	extraNets = append(extraNets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
}

// IsKnownIP reports whether the address is private, loopback, or registered
// as known infrastructure. Unparseable input returns false.
func IsKnownIP(ipStr string) bool {
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil {
		return false
	}
	for _, n := range defaultNets {
		if n.Contains(ip) {
			return true
		}
	}
	for _, n := range extraNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Reset clears all runtime registrations. The built-in private ranges stay.
// Used by tests and by long-lived processes that re-run with a new config.
func Reset() {
	extraNets = nil
	knownAccounts = nil
	knownPaths = nil
}
