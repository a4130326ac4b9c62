package rewriter

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const addressPrefix = "00."

// DeriveAddress splits identifier into two-character groups, joins them with
// dots and prefixes "00.". An odd-length identifier ends with a one-character
// group.
func DeriveAddress(identifier string) string {
	groups := make([]string, 0, (len(identifier)+1)/2)
	for i := 0; i < len(identifier); i += 2 {
		end := i + 2
		if end > len(identifier) {
			end = len(identifier)
		}
		groups = append(groups, identifier[i:end])
	}
	return addressPrefix + strings.Join(groups, ".")
}

// ParseTarget reads a dotted address into the 4 bytes an A record carries.
// Groups are plain decimal numbers, so "00" is accepted as 0.
func ParseTarget(addr string) (net.IP, error) {
	groups := strings.Split(addr, ".")
	if len(groups) != net.IPv4len {
		return nil, fmt.Errorf("%w: %q has %d groups", ErrInvalidTarget, addr, len(groups))
	}
	ip := make(net.IP, net.IPv4len)
	for i, group := range groups {
		octet, err := strconv.ParseUint(group, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTarget, addr, err)
		}
		ip[i] = byte(octet)
	}
	return ip, nil
}
