package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

var (
	ErrPrivateIP     = errors.New("URL resolves to a private address")
	ErrInvalidScheme = errors.New("only http and https URLs are allowed")
	ErrMissingHost   = errors.New("URL has no host")
)

// ParseWebURL parses an absolute http(s) URL.
func ParseWebURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrInvalidScheme
	}
	if u.Hostname() == "" {
		return nil, ErrMissingHost
	}
	return u, nil
}

// ValidateRemoteURL rejects URLs that are not http(s) or whose host resolves
// to a loopback, private or otherwise reserved address.
func ValidateRemoteURL(raw string, allowPrivate bool) error {
	u, err := ParseWebURL(raw)
	if err != nil {
		return err
	}
	if allowPrivate {
		return nil
	}
	return validateHostIP(u.Hostname())
}

func validateHostIP(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
	}
	return nil
}

// DialControl is a net.Dialer Control hook that refuses connections to
// private or reserved addresses. It runs after name resolution, so it also
// covers hosts whose DNS answer changes between validation and dial.
func DialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("dial %s: not an IP address", address)
	}
	if isPrivateIP(ip) {
		return ErrPrivateIP
	}
	return nil
}

var reservedNets = mustCIDRs(
	"0.0.0.0/8",
	"100.64.0.0/10",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
)

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	for _, n := range reservedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func mustCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}
