package core

import (
	"net/netip"
)

// IPConfig is one address family's configuration as applied to a device, or
// as pushed by a VPN. The policy engine treats it as an immutable value; a
// device that reconfigures emits a change event carrying a new IPConfig.
type IPConfig struct {
	Family Family

	// Addresses in preference order. The first one is the primary address
	// used for reverse-DNS hostname resolution.
	Addresses []netip.Addr

	Gateway netip.Addr

	// DNSHostname is the hostname option received from DHCP, verbatim.
	DNSHostname string

	DNSServers    []netip.Addr
	SearchDomains []string

	// NeverDefault excludes this configuration from default-route
	// arbitration. It still participates in DNS registration.
	NeverDefault bool
}

// PrimaryAddress returns the first address, or an invalid Addr when the
// configuration holds none.
func (c *IPConfig) PrimaryAddress() netip.Addr {
	if c == nil || len(c.Addresses) == 0 {
		return netip.Addr{}
	}
	return c.Addresses[0]
}

// Link is the kernel view of a network interface, as reported by the
// platform shim.
type Link struct {
	Index  int
	Master int
	Up     bool
}
