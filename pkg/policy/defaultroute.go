package policy

import (
	"github.com/datawire/dlib/dlog"

	"github.com/vireonet/vireo/pkg/core"
)

// familyArbiter holds one family's published fields. defaultDevice tracks
// fully-activated leadership; activatingDevice tracks the best candidate
// regardless of activation progress.
type familyArbiter struct {
	defaultDevice    *core.Device
	activatingDevice *core.Device
}

func (e *Engine) updateRoutingAndDNS(f core.Family) {
	e.updateRouting(f)
	e.updateDNS(f)
}

// updateRouting selects the family's default session and device. The
// default flag moves in two phases, clear-everyone-else then set, so that
// no two sessions ever carry it simultaneously.
func (e *Engine) updateRouting(f core.Family) {
	arb := &e.arb[f]
	devices := e.manager.Devices()
	sessions := e.manager.ActiveSessions()

	bestDev, bestSess := e.routes.BestDevice(f, core.RouteQuery{FullyActivated: true, Last: arb.defaultDevice}, devices)
	vpn := e.routes.BestVPN(f, sessions)

	chosen := bestSess
	if vpn != nil {
		chosen = vpn
	}
	if chosen == nil {
		if arb.defaultDevice != nil {
			dlog.Infof(e.ctx, "%s default device cleared (was %s)", f, arb.defaultDevice.Iface)
			arb.defaultDevice = nil
			e.emitProperty(defaultProp(f), nil)
		}
		return
	}

	// A VPN can tunnel over a device that is chosen only now; bind any
	// device-less VPN carrying this family to the best device.
	if bestDev != nil {
		for _, as := range sessions {
			if as.IsVPN() && as.Device() == nil && as.IPConfig(f) != nil {
				as.BindDevice(bestDev)
			}
		}
	}

	newDefault := bestDev
	if vpn != nil && vpn.Device() != nil {
		newDefault = vpn.Device()
	}

	for _, as := range sessions {
		if as != chosen && as.Default(f) {
			as.SetDefault(f, false)
		}
	}
	chosen.SetDefault(f, true)

	if newDefault != arb.defaultDevice {
		old := "none"
		if arb.defaultDevice != nil {
			old = arb.defaultDevice.Iface
		}
		arb.defaultDevice = newDefault
		name := "none"
		if newDefault != nil {
			name = newDefault.Iface
		}
		dlog.Infof(e.ctx, "%s default device: %s -> %s", f, old, name)
		e.emitProperty(defaultProp(f), newDefault)
	}
}

// updateDNS re-registers the family's best configuration with the DNS
// manager. The query admits never-default configurations: a device that
// must not carry the default route can still be the best resolver source.
func (e *Engine) updateDNS(f core.Family) {
	ctx := e.ctx
	arb := &e.arb[f]
	devices := e.manager.Devices()

	vpn := e.routes.BestVPN(f, e.manager.ActiveSessions())
	if vpn != nil {
		if cfg := vpn.IPConfig(f); cfg != nil {
			iface := ""
			if d := vpn.Device(); d != nil {
				iface = d.Iface
			}
			e.dns.SetIPConfig(ctx, iface, cfg, core.DNSPriorityVPN)
			return
		}
	}

	cfgDev, _ := e.routes.BestDevice(f, core.RouteQuery{
		FullyActivated:     true,
		IgnoreNeverDefault: true,
		Last:               arb.defaultDevice,
	}, devices)
	if cfgDev == nil {
		return
	}
	if cfg := cfgDev.IPConfig(f); cfg != nil {
		e.dns.SetIPConfig(ctx, cfgDev.Iface, cfg, core.DNSPriorityBestDevice)
	}
}

// updateActivatingDevices refreshes both families' activating-device
// fields under a notification freeze so they appear to change atomically.
func (e *Engine) updateActivatingDevices() {
	e.freezeNotify()
	defer e.thawNotify()

	for _, f := range core.Families() {
		arb := &e.arb[f]
		dev, _ := e.routes.BestDevice(f, core.RouteQuery{Last: arb.activatingDevice}, e.manager.Devices())
		if dev != arb.activatingDevice {
			arb.activatingDevice = dev
			e.emitProperty(activatingProp(f), dev)
		}
	}
}

func defaultProp(f core.Family) Property {
	if f == core.FamilyV4 {
		return PropDefaultDevice4
	}
	return PropDefaultDevice6
}

func activatingProp(f core.Family) Property {
	if f == core.FamilyV4 {
		return PropActivatingDevice4
	}
	return PropActivatingDevice6
}
