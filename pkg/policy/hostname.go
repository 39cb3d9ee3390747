package policy

import (
	"context"
	"net/netip"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/vireonet/vireo/pkg/core"
)

// FallbackHostname is used when the precedence ladder produces nothing.
const FallbackHostname = "localhost.localdomain"

// hostnameState carries the hostname pipeline's bookkeeping. At most one
// reverse lookup is ever outstanding.
type hostnameState struct {
	// original is the system hostname captured at startup.
	original string

	// current is the hostname the engine currently wants.
	current string

	// changed is raised the first time the engine sets a hostname.
	changed bool

	lookupAddr   netip.Addr
	lookupCancel context.CancelFunc
}

func (h *hostnameState) cancelLookup() {
	if h.lookupCancel != nil {
		h.lookupCancel()
		h.lookupCancel = nil
		h.lookupAddr = netip.Addr{}
	}
}

// specificHostname reports whether name is a real hostname rather than
// empty or one of the well-known unset tokens.
func specificHostname(name string) bool {
	switch name {
	case "", "(none)", "localhost", "localhost6",
		"localhost.localdomain", "localhost6.localdomain6":
		return false
	}
	return true
}

// updateSystemHostname runs the precedence ladder: configured hostname,
// DHCP-supplied hostname from the best activated device, the original
// hostname from startup, and finally reverse-DNS of the best device's
// primary address. Any prior in-flight lookup is cancelled first.
func (e *Engine) updateSystemHostname(why string) {
	ctx := e.ctx
	dlog.Debugf(ctx, "updating system hostname (%s)", why)
	e.hostname.cancelLookup()

	if name := e.manager.Hostname(); specificHostname(name) {
		e.setSystemHostname(name, "from system configuration")
		return
	}

	best4 := e.arb[core.FamilyV4].defaultDevice
	best6 := e.arb[core.FamilyV6].defaultDevice

	// DHCPv6 is consulted only when no v4 best device exists.
	dhcpDev, dhcpFamily := best4, core.FamilyV4
	if dhcpDev == nil {
		dhcpDev, dhcpFamily = best6, core.FamilyV6
	}
	if dhcpDev != nil {
		if cfg := dhcpDev.IPConfig(dhcpFamily); cfg != nil && cfg.DNSHostname != "" {
			name := strings.TrimLeft(cfg.DNSHostname, " \t")
			if name == "" {
				dlog.Warnf(ctx, "ignoring whitespace-only DHCP hostname from %s", dhcpDev.Iface)
			} else {
				e.setSystemHostname(name, "from DHCP")
				return
			}
		}
	}

	if specificHostname(e.hostname.original) {
		e.setSystemHostname(e.hostname.original, "from system startup")
		return
	}

	var addr netip.Addr
	if best4 != nil {
		addr = best4.IPConfig(core.FamilyV4).PrimaryAddress()
	}
	if !addr.IsValid() && best6 != nil {
		addr = best6.IPConfig(core.FamilyV6).PrimaryAddress()
	}
	if !addr.IsValid() || e.resolver == nil {
		e.setSystemHostname("", "no address to look up")
		return
	}
	e.startHostnameLookup(addr)
}

// startHostnameLookup issues the asynchronous reverse lookup. Completion
// hops back onto the task queue; a cancelled lookup is a silent no-op.
func (e *Engine) startHostnameLookup(addr netip.Addr) {
	ctx := e.ctx
	dlog.Debugf(ctx, "looking up hostname for %s", addr)
	lctx, cancel := context.WithCancel(ctx)
	e.hostname.lookupAddr = addr
	e.hostname.lookupCancel = cancel

	go func() {
		name, err := e.resolver.LookupPTR(lctx, addr)
		e.sched.Post("hostname-lookup-done", func(context.Context) {
			if lctx.Err() != nil {
				return
			}
			e.hostname.lookupCancel = nil
			e.hostname.lookupAddr = netip.Addr{}
			if err != nil {
				dlog.Debugf(ctx, "reverse lookup of %s failed: %v", addr, err)
				e.setSystemHostname("", "address lookup failed")
			} else {
				e.setSystemHostname(name, "from address lookup")
			}
		})
	}()
}

// setSystemHostname commits a new desired hostname. An empty name falls
// back to the well-known local name. Nothing happens when the request
// matches the current desire, or when the engine never changed the
// hostname and the request equals the original.
func (e *Engine) setSystemHostname(name, msg string) {
	ctx := e.ctx
	if !e.hostname.changed && name == e.hostname.original {
		return
	}
	if name == e.hostname.current {
		return
	}
	e.hostname.current = name
	e.hostname.changed = true

	effective := name
	if effective == "" {
		effective = FallbackHostname
	}
	dlog.Infof(ctx, "setting system hostname to %q (%s)", effective, msg)

	// The DNS manager extracts the domain suffix into its search list.
	e.dns.SetHostname(ctx, effective)

	e.settings.SetTransientHostname(ctx, effective, func(err error) {
		if err != nil {
			dlog.Warnf(ctx, "could not commit hostname %q: %v", effective, err)
		}
	})
	if e.dispatch != nil {
		e.dispatch.Call(ctx, core.ActionHostname)
	}
}
