// Package security guards outbound fetches of caller-supplied URLs.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// ErrBlockedHost is returned for URLs that point at internal infrastructure
var ErrBlockedHost = errors.New("blocked host")

// blockedPrefixes are internal networks ingest must never reach
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// blockedHostnames match exactly or as a parent domain
var blockedHostnames = []string{
	"localhost",
	"localhost.localdomain",
	"ip6-localhost",
	"ip6-loopback",
	"metadata.google.internal",
	"kubernetes.default",
	"kubernetes.default.svc",
}

// Resolver looks up the addresses of a host
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// IsBlockedAddr reports whether an address falls in an internal range.
// IPv4-mapped IPv6 addresses are checked as IPv4.
func IsBlockedAddr(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.Unmap()
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// IsBlockedHostname checks a hostname against the blocklist
func IsBlockedHostname(hostname string) bool {
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))
	for _, blocked := range blockedHostnames {
		if hostname == blocked || strings.HasSuffix(hostname, "."+blocked) {
			return true
		}
	}
	return false
}

// ParseFetchURL parses an http(s) URL with a host
func ParseFetchURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("only HTTP/HTTPS URLs are supported, got: %s", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("invalid URL: missing host")
	}
	return parsed, nil
}

// CheckHost rejects internal hostnames and addresses. When resolver is set, names are
// resolved and every address is checked; a failed lookup is let through so the fetch
// itself reports the unreachable host.
func CheckHost(ctx context.Context, hostname string, resolver Resolver) error {
	if IsBlockedHostname(hostname) {
		return fmt.Errorf("%w: internal hostname '%s' is not allowed", ErrBlockedHost, hostname)
	}

	if addr, err := netip.ParseAddr(strings.Trim(hostname, "[]")); err == nil {
		if IsBlockedAddr(addr) {
			return fmt.Errorf("%w: private IP address '%s' is not allowed", ErrBlockedHost, hostname)
		}
		return nil
	}

	if resolver == nil {
		return nil
	}
	addrs, err := resolver.LookupNetIP(ctx, "ip", hostname)
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		if IsBlockedAddr(addr) {
			return fmt.Errorf("%w: hostname '%s' resolves to private IP address '%s'", ErrBlockedHost, hostname, addr)
		}
	}
	return nil
}

// DefaultResolver is the system resolver
var DefaultResolver Resolver = net.DefaultResolver
